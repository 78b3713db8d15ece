package domain

import "errors"

// ErrCursorConflict means the persisted checkpoint cursor no longer matches
// the committer's view: another loader instance advanced it concurrently. The
// loser must stop rather than risk a lost update.
var ErrCursorConflict = errors.New("checkpoint cursor changed concurrently")
