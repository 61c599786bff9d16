// Package migrate copies document collections between two store
// environments, either incrementally or by overwriting.
package migrate

import "errors"

// ErrAborted is returned when a destructive operation is declined.
var ErrAborted = errors.New("aborted by operator")

// Mode selects how Sync treats documents already present in the target.
type Mode string

const (
	// ModeIncremental skips documents deep-equal to the target copy.
	ModeIncremental Mode = "incremental"
	// ModeOverwrite writes every source document.
	ModeOverwrite Mode = "overwrite"
)

// ParseMode validates a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeIncremental, ModeOverwrite:
		return Mode(s), nil
	}
	return "", errors.New("mode must be incremental or overwrite")
}

// CollectionStats summarizes one collection.
type CollectionStats struct {
	Collection string `json:"collection"`
	Read       int    `json:"read"`
	Written    int    `json:"written"`
	Skipped    int    `json:"skipped"`
	Deleted    int    `json:"deleted,omitempty"`
	Batches    int    `json:"batches"`
	DryRun     bool   `json:"dryRun,omitempty"`
}

// Reporter receives lifecycle callbacks from the syncer.
type Reporter interface {
	OnCollectionStart(collection string, mode Mode, total int)
	OnBatchCommitted(collection string, batch int, written int)
	OnCollectionComplete(stats CollectionStats)
	OnError(collection string, err error)
}

// Confirmer asks the operator before an irreversible step.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}
