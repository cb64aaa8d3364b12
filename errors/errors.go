// Package errors defines the error taxonomy shared by the source synchronization engine.
//
// Callers classify failures with errors.Is against the sentinels below:
//   - ErrStructuralInconsistency and ErrParse are fatal and never repaired silently.
//   - ErrConflict is returned as *ConflictError carrying every conflicting entry.
//   - ErrPartialFailure is returned as *PartialFailureError; the succeeded subset is still usable.
//   - ErrTimeout is transient; resume with a status check instead of resubmitting.
//   - ErrDuplicateComponent is a notice, never a failure on its own.
package errors

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrStructuralInconsistency = errors.New("structural inconsistency in workspace")
	ErrParse                   = errors.New("failed to parse metadata document")
	ErrConflict                = errors.New("source conflicts detected")
	ErrPartialFailure          = errors.New("operation partially failed")
	ErrTimeout                 = errors.New("remote operation timed out")
	ErrDuplicateComponent      = errors.New("duplicate component written to sidecar file")
	ErrUnknownType             = errors.New("unknown metadata type")
	ErrInvalidPath             = errors.New("path does not belong to a tracked package")
	ErrBaseline                = errors.New("workspace baseline error")
	ErrInvalidProject          = errors.New("invalid project configuration")
	ErrRemote                  = errors.New("remote operation failed")
	ErrHookAborted             = errors.New("operation aborted by event handler")
)

// ConflictEntry describes one side of a conflicting change.
type ConflictEntry struct {
	Origin   string `json:"origin"`
	State    string `json:"state"`
	Type     string `json:"type"`
	FullName string `json:"fullName"`
	FilePath string `json:"filePath,omitempty"`
}

// ConflictError is returned when local and remote changes share an identity.
type ConflictError struct {
	Entries []ConflictEntry
}

func (e *ConflictError) Error() string {
	names := make([]string, 0, len(e.Entries))
	seen := make(map[string]bool)
	for _, entry := range e.Entries {
		key := entry.Type + ":" + entry.FullName
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, key)
	}
	return fmt.Sprintf("%s: %s", ErrConflict.Error(), strings.Join(names, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ComponentFailure is a single failed component inside a batch.
type ComponentFailure struct {
	Type     string `json:"type"`
	FullName string `json:"fullName"`
	FileName string `json:"fileName,omitempty"`
	Problem  string `json:"problem"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// PartialFailureError reports a batch where some components failed while others succeeded.
// Succeeded holds the identities ("Type:FullName") that are now synchronized.
type PartialFailureError struct {
	Operation string
	Succeeded []string
	Failed    []ComponentFailure
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %d succeeded, %d failed", e.Operation, len(e.Succeeded), len(e.Failed))
}

func (e *PartialFailureError) Unwrap() error {
	return ErrPartialFailure
}

// Structural wraps a structural inconsistency detected at path.
func Structural(path, format string, args ...interface{}) error {
	return Build(ErrStructuralInconsistency).
		WithExplanationf(format, args...).
		WithContext("path", path).
		Err()
}

// Parse wraps a document parse failure.
func Parse(path string, cause error) error {
	return Build(ErrParse).
		WithCause(cause).
		WithContext("path", path).
		Err()
}

// Timeout reports an exhausted poll loop for the given remote job.
func Timeout(jobID string, cause error) error {
	return Build(ErrTimeout).
		WithCause(cause).
		WithHint("check the job status later instead of resubmitting").
		WithContext("job", jobID).
		Err()
}
