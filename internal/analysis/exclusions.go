package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"outlier-backend/internal/platform"
)

// knownTopics is the dictionary of game and format names matched against
// reference-channel uploads when building an exclusion vocabulary.
var knownTopics = []string{
	"minecraft", "roblox", "fortnite", "among us", "fall guys",
	"poppy playtime", "hello neighbor", "granny", "bendy", "fnaf",
	"subnautica", "raft", "happy wheels", "pokemon", "terraria",
	"stardew valley", "lethal company", "garten of banban",
	"gaming", "gameplay", "speedrun", "walkthrough", "playthrough",
	"mod", "update", "challenge", "reaction", "animation",
	"horror", "funny moments", "vlog", "music video", "podcast",
	"tutorial", "unboxing", "shorts",
}

// vocabLookbackDays bounds how far back reference uploads are sampled when
// deriving topics, independent of the job's own analysis window.
const vocabLookbackDays = 90

// Vocabulary is the set of lowercase terms a candidate video must not match.
type Vocabulary map[string]struct{}

func (v Vocabulary) Add(term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	if len(term) < 3 {
		return
	}
	v[term] = struct{}{}
}

// Terms returns the vocabulary sorted for deterministic iteration.
func (v Vocabulary) Terms() []string {
	terms := make([]string, 0, len(v))
	for t := range v {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// MatchesVideo reports whether the video's title, description, or tags hit
// any vocabulary term. Short terms require a whole-word match; longer ones
// match as substrings.
func (v Vocabulary) MatchesVideo(video platform.Video) bool {
	title := strings.ToLower(video.Title)
	desc := strings.ToLower(video.Description)
	tags := make([]string, len(video.Tags))
	for i, tag := range video.Tags {
		tags[i] = strings.ToLower(tag)
	}
	for term := range v {
		if len(term) >= 5 {
			if strings.Contains(title, term) || strings.Contains(desc, term) {
				return true
			}
		} else if containsWord(title, term) || containsWord(desc, term) {
			return true
		}
		for _, tag := range tags {
			if tag == term || (len(term) >= 5 && strings.Contains(tag, term)) {
				return true
			}
		}
	}
	return false
}

func containsWord(text, word string) bool {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if field == word {
			return true
		}
	}
	return false
}

// ExclusionBuilder turns reference channel names into a topic vocabulary by
// sampling each channel's recent uploads.
type ExclusionBuilder struct {
	Source  Source
	RecentN int

	now func() time.Time
}

func NewExclusionBuilder(source Source, recentN int) *ExclusionBuilder {
	if recentN <= 0 {
		recentN = 15
	}
	return &ExclusionBuilder{Source: source, RecentN: recentN, now: time.Now}
}

// ExclusionSet is the outcome of resolving the reference channels: the mined
// topic vocabulary, the resolved channel IDs, the references that contributed
// nothing, and the references whose data was served from an expired cache.
type ExclusionSet struct {
	Vocab    Vocabulary
	RefIDs   []string
	Skipped  []SkippedChannel
	Degraded []string
}

// Build resolves each reference name and mines its uploads for topics.
// Reference channels that cannot be resolved or read are reported as skipped;
// only a total wash across every reference is an error.
func (b *ExclusionBuilder) Build(ctx context.Context, refs []string) (ExclusionSet, error) {
	set := ExclusionSet{Vocab: make(Vocabulary, 32)}
	var lastErr error

	after := b.now().AddDate(0, 0, -vocabLookbackDays)

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return ExclusionSet{}, err
		}
		channels, searchDegraded, err := b.Source.SearchChannels(ctx, ref, 1)
		if err != nil {
			lastErr = err
			set.Skipped = append(set.Skipped, SkippedChannel{Title: ref, Reason: skipReason(err)})
			continue
		}
		if len(channels) == 0 {
			set.Skipped = append(set.Skipped, SkippedChannel{Title: ref, Reason: "reference channel not found"})
			continue
		}
		ch := channels[0]
		set.RefIDs = append(set.RefIDs, ch.ID)
		set.Vocab.Add(ch.Title)

		videos, videosDegraded, err := b.Source.RecentVideos(ctx, ch.ID, after, b.RecentN)
		if err != nil {
			lastErr = err
			set.Skipped = append(set.Skipped, SkippedChannel{ChannelID: ch.ID, Title: ch.Title, Reason: skipReason(err)})
			continue
		}
		if searchDegraded || videosDegraded {
			set.Degraded = append(set.Degraded, ch.ID)
		}
		for _, v := range videos {
			mineTerms(v, set.Vocab)
		}
	}

	if len(set.RefIDs) == 0 {
		if lastErr != nil {
			return ExclusionSet{}, fmt.Errorf("%w: %w", ErrExclusionsUnavailable, lastErr)
		}
		return ExclusionSet{}, ErrExclusionsUnavailable
	}
	return set, nil
}

// mineTerms pulls topics out of one upload: dictionary hits, quoted phrases,
// capitalized word runs, and tags.
func mineTerms(v platform.Video, vocab Vocabulary) {
	lowered := strings.ToLower(v.Title + " " + v.Description)
	for _, topic := range knownTopics {
		if strings.Contains(lowered, topic) {
			vocab.Add(topic)
		}
	}
	for _, phrase := range quotedPhrases(v.Title) {
		vocab.Add(phrase)
	}
	for _, run := range capitalizedRuns(v.Title) {
		vocab.Add(run)
	}
	for _, tag := range v.Tags {
		vocab.Add(tag)
	}
}

func quotedPhrases(s string) []string {
	var phrases []string
	for {
		open := strings.IndexAny(s, `"'`)
		if open < 0 {
			break
		}
		quote := s[open]
		rest := s[open+1:]
		end := strings.IndexByte(rest, quote)
		if end < 0 {
			break
		}
		if phrase := strings.TrimSpace(rest[:end]); phrase != "" {
			phrases = append(phrases, phrase)
		}
		s = rest[end+1:]
	}
	return phrases
}

// capitalizedRuns extracts consecutive capitalized words, which in upload
// titles are usually proper nouns naming the game or series.
func capitalizedRuns(title string) []string {
	var runs []string
	var current []string
	flush := func() {
		// single capitalized words are too noisy to keep
		if len(current) >= 2 {
			runs = append(runs, strings.Join(current, " "))
		}
		current = current[:0]
	}
	for _, word := range strings.Fields(title) {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		r := []rune(trimmed)
		if len(r) >= 2 && unicode.IsUpper(r[0]) && !allUpper(r) {
			current = append(current, trimmed)
			continue
		}
		flush()
	}
	flush()
	return runs
}

func allUpper(r []rune) bool {
	for _, c := range r {
		if unicode.IsLetter(c) && !unicode.IsUpper(c) {
			return false
		}
	}
	return true
}
