package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)

	job := Job{
		ID:        "job-1",
		Status:    StatusPending,
		Config:    validConfig(),
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO analysis_jobs").
		WithArgs(
			job.ID,
			job.Status,
			0,
			0,
			sqlmock.AnyArg(), // config json
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDRoundTripsPayloads(t *testing.T) {
	repo, mock := newMockRepo(t)

	created := time.Now().UTC().Truncate(time.Second)
	completed := created.Add(time.Minute)
	rows := sqlmock.NewRows([]string{
		"id", "status", "current_step", "progress_percent", "config", "results", "skipped_channels",
		"degraded_channels", "error_code", "error_summary", "created_at", "started_at", "completed_at",
	}).AddRow(
		"job-1", StatusCompleted, StepFinalize, 100,
		[]byte(`{"exclusionChannels":["Thinknoodles"],"minSubscribers":10000,"maxSubscribers":1000000,"timeWindowDays":7,"outlierThreshold":15}`),
		`[{"video":{"id":"big"},"channel":{"id":"cand-1"},"outlierScore":20,"brandFitScore":5,"rank":1}]`,
		`[{"channelId":"broken","reason":"provider unavailable"}]`,
		`["cand-2"]`,
		nil, nil, created, created, completed,
	)
	mock.ExpectQuery("SELECT id, status, current_step").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != StatusCompleted || job.ProgressPercent != 100 {
		t.Fatalf("job = %+v", job)
	}
	if len(job.Results) != 1 || job.Results[0].Video.ID != "big" || job.Results[0].Rank != 1 {
		t.Fatalf("results = %+v", job.Results)
	}
	if len(job.SkippedChannels) != 1 || job.SkippedChannels[0].ChannelID != "broken" {
		t.Fatalf("skipped = %+v", job.SkippedChannels)
	}
	if len(job.DegradedChannels) != 1 || job.DegradedChannels[0] != "cand-2" {
		t.Fatalf("degraded = %+v", job.DegradedChannels)
	}
	if job.Config.TimeWindowDays != 7 {
		t.Fatalf("config = %+v", job.Config)
	}
	if job.CompletedAt == nil {
		t.Fatalf("expected completed_at")
	}
}

func TestPGRepoMarkCancelledOnlyTouchesLiveJobs(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs(StatusCancelled, sqlmock.AnyArg(), "job-1", StatusPending, StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkCancelled(context.Background(), "job-1", now)
	if err != nil || !ok {
		t.Fatalf("MarkCancelled = %v, %v", ok, err)
	}

	// already terminal: zero rows updated, job still exists
	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs(StatusCancelled, sqlmock.AnyArg(), "job-1", StatusPending, StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{
		"id", "status", "current_step", "progress_percent", "config", "results", "skipped_channels",
		"degraded_channels", "error_code", "error_summary", "created_at", "started_at", "completed_at",
	}).AddRow("job-1", StatusCompleted, StepFinalize, 100, []byte(`{}`), nil, nil, nil, nil, nil, now, now, now)
	mock.ExpectQuery("SELECT id, status, current_step").WithArgs("job-1").WillReturnRows(rows)

	ok, err = repo.MarkCancelled(context.Background(), "job-1", now)
	if err != nil || ok {
		t.Fatalf("MarkCancelled on terminal job = %v, %v, want false, nil", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateProgressRefusesTerminalJob(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs(StepScoring, 90, "job-1", StatusPending, StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{
		"id", "status", "current_step", "progress_percent", "config", "results", "skipped_channels",
		"degraded_channels", "error_code", "error_summary", "created_at", "started_at", "completed_at",
	}).AddRow("job-1", StatusCancelled, StepCollection, 60, []byte(`{}`), nil, nil, nil, nil, nil, now, now, now)
	mock.ExpectQuery("SELECT id, status, current_step").WithArgs("job-1").WillReturnRows(rows)

	err := repo.UpdateProgress(context.Background(), "job-1", StepScoring, 90)
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("err = %v, want ErrTerminal", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCompleteRefusesTerminalJob(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs(StatusCompleted, StepFinalize, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "job-1", StatusPending, StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{
		"id", "status", "current_step", "progress_percent", "config", "results", "skipped_channels",
		"degraded_channels", "error_code", "error_summary", "created_at", "started_at", "completed_at",
	}).AddRow("job-1", StatusCancelled, StepCollection, 60, []byte(`{}`), nil, nil, nil, nil, nil, now, now, now)
	mock.ExpectQuery("SELECT id, status, current_step").WithArgs("job-1").WillReturnRows(rows)

	err := repo.Complete(context.Background(), "job-1", nil, nil, nil, now)
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("err = %v, want ErrTerminal", err)
	}
}
