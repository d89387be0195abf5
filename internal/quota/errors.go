package quota

import "errors"

// ErrExceeded indicates the daily budget cannot admit the requested cost.
var ErrExceeded = errors.New("quota exceeded")
