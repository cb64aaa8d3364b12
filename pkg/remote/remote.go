// Package remote defines the collaborators the synchronization engine talks to: the
// deploy/retrieve service, the revision-tracking service and the watermark store.
package remote

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -source=remote.go -destination=mock_remote.go -package=remote

import (
	"context"

	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

// Status is the terminal state of a deploy or retrieve.
type Status string

const (
	StatusSucceeded        Status = "Succeeded"
	StatusSucceededPartial Status = "SucceededPartial"
	StatusFailed           Status = "Failed"
)

// ProblemNotFound is reported by a deploy that deletes a component the remote does not have.
const ProblemNotFound = "not found"

// ComponentResult is the outcome of one component in a deploy.
type ComponentResult struct {
	Type     string `json:"type"`
	FullName string `json:"fullName"`
	FileName string `json:"fileName,omitempty"`
	Success  bool   `json:"success"`
	Deleted  bool   `json:"deleted,omitempty"`
	Problem  string `json:"problem,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

func (c ComponentResult) Identity() metadata.Identity {
	return metadata.Identity{Type: c.Type, FullName: c.FullName}
}

// DeployResult is the terminal result of a deploy job.
type DeployResult struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	Components []ComponentResult `json:"components"`
}

// Recompute derives Status from the component outcomes.
func (r *DeployResult) Recompute() {
	ok, failed := 0, 0
	for _, c := range r.Components {
		if c.Success {
			ok++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		r.Status = StatusSucceeded
	case ok == 0:
		r.Status = StatusFailed
	default:
		r.Status = StatusSucceededPartial
	}
}

// FileProperty describes one file of a retrieve result, in aggregate layout.
type FileProperty struct {
	Type     string `json:"type"`
	FullName string `json:"fullName"`
	FileName string `json:"fileName"`
}

func (f FileProperty) Identity() metadata.Identity {
	return metadata.Identity{Type: f.Type, FullName: f.FullName}
}

// Message is a retrieve warning, typically a requested member that does not exist.
type Message struct {
	FileName string `json:"fileName"`
	Problem  string `json:"problem"`
}

// RetrieveResult is the terminal result of a retrieve job.
type RetrieveResult struct {
	ID             string         `json:"id"`
	Status         Status         `json:"status"`
	ZipFile        []byte         `json:"-"`
	FileProperties []FileProperty `json:"fileProperties"`
	Messages       []Message      `json:"messages,omitempty"`
}

// DeployOptions are passed through to the deploy service.
type DeployOptions struct {
	APIVersion string
	// CheckOnly validates without saving.
	CheckOnly bool
}

// RetrieveOptions are passed through to the retrieve service.
type RetrieveOptions struct {
	APIVersion string
}

// ChangeElement is one entry of the remote revision log.
type ChangeElement struct {
	Type     string `json:"type"`
	FullName string `json:"fullName"`
	Revision int64  `json:"revision"`
	Deleted  bool   `json:"deleted"`
}

func (c ChangeElement) Identity() metadata.Identity {
	return metadata.Identity{Type: c.Type, FullName: c.FullName}
}

// Deployer submits zipped aggregate trees.
type Deployer interface {
	Deploy(ctx context.Context, zip []byte, opts DeployOptions) (Job[*DeployResult], error)
}

// Retriever fetches the members of a manifest as a zipped aggregate tree.
type Retriever interface {
	Retrieve(ctx context.Context, manifest *Manifest, opts RetrieveOptions) (Job[*RetrieveResult], error)
}

// RevisionTracker exposes the remote revision log.
type RevisionTracker interface {
	// RetrieveOutstandingChanges returns every change with a revision above watermark.
	RetrieveOutstandingChanges(ctx context.Context, watermark int64) ([]ChangeElement, error)
	// LatestRevisions returns the newest revision of each requested identity that exists in the log.
	LatestRevisions(ctx context.Context, ids []metadata.Identity) ([]ChangeElement, error)
}

// Remote is a complete remote store.
type Remote interface {
	Deployer
	Retriever
	RevisionTracker
}

// WatermarkStore persists the last fully synchronized remote revision.
type WatermarkStore interface {
	Load() (*Watermark, error)
	// Advance raises the watermark to revision and forgets acknowledgements at or below it.
	// It never lowers the watermark.
	Advance(revision int64) error
	// Acknowledge records revisions produced by this workspace so they are not reported back.
	Acknowledge(revisions map[metadata.Identity]int64) error
}
