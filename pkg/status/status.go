// Package status combines local workspace changes with outstanding remote changes and flags
// components changed on both sides as conflicts.
package status

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/internal/ignore"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
	"github.com/yuya-takeyama/srcsync/pkg/workspace"
)

type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Entry is one local or remote change.
type Entry struct {
	Origin   Origin         `json:"origin"`
	State    metadata.State `json:"state"`
	FullName string         `json:"fullName"`
	Type     string         `json:"type"`
	FilePath string         `json:"filePath,omitempty"`
	Revision int64          `json:"revision,omitempty"`
	Conflict bool           `json:"conflict"`
	// ConflictsWith lists the keys of the entries on the other side sharing this identity.
	ConflictsWith []string `json:"conflictsWith,omitempty"`
}

func (e *Entry) Identity() metadata.Identity {
	return metadata.Identity{Type: e.Type, FullName: e.FullName}
}

// Key uniquely names the entry within a Result.
func (e *Entry) Key() string {
	if e.Origin == OriginLocal {
		return string(OriginLocal) + ":" + e.FilePath
	}
	return string(OriginRemote) + ":" + e.Identity().String()
}

// Request selects the sides to report.
type Request struct {
	Local  bool
	Remote bool
}

type Result struct {
	Local  []*Entry `json:"localChanges"`
	Remote []*Entry `json:"remoteChanges"`
}

// Conflicts returns the conflicting entries of both sides, local first.
func (r *Result) Conflicts() []*Entry {
	var out []*Entry
	for _, e := range append(append([]*Entry(nil), r.Local...), r.Remote...) {
		if e.Conflict {
			out = append(out, e)
		}
	}
	return out
}

// ConflictError returns a *errors.ConflictError listing every conflicting entry, or nil.
func (r *Result) ConflictError() error {
	conflicts := r.Conflicts()
	if len(conflicts) == 0 {
		return nil
	}
	ce := &errUtils.ConflictError{}
	for _, e := range conflicts {
		ce.Entries = append(ce.Entries, errUtils.ConflictEntry{
			Origin:   string(e.Origin),
			State:    string(e.State),
			Type:     e.Type,
			FullName: e.FullName,
			FilePath: e.FilePath,
		})
	}
	return ce
}

type Options struct {
	Adapter    *workspace.Adapter
	Revisions  remote.RevisionTracker
	Watermarks remote.WatermarkStore
	Ignore     ignore.Predicate
	Logger     *log.Logger
}

type Engine struct {
	adapter    *workspace.Adapter
	revisions  remote.RevisionTracker
	watermarks remote.WatermarkStore
	ignore     ignore.Predicate
	log        *log.Logger
}

func New(opts Options) *Engine {
	accepts := opts.Ignore
	if accepts == nil {
		accepts = ignore.AcceptAll{}
	}
	return &Engine{
		adapter:    opts.Adapter,
		revisions:  opts.Revisions,
		watermarks: opts.Watermarks,
		ignore:     accepts,
		log:        logger.OrNull(opts.Logger),
	}
}

// Compute reports the requested sides. Conflicts are only flagged when the remote side is
// requested; the local side is then always inspected.
func (e *Engine) Compute(ctx context.Context, req Request) (*Result, error) {
	if !req.Remote {
		result := &Result{}
		if req.Local {
			result.Local = e.localChanges()
		}
		return result, nil
	}

	changes, err := e.RemoteChanges(ctx)
	if err != nil {
		return nil, err
	}
	result, err := e.Evaluate(changes)
	if err != nil {
		return nil, err
	}
	if !req.Local {
		result.Local = nil
	}
	return result, nil
}

// Evaluate annotates remote changes already fetched with RemoteChanges and flags the ones
// sharing an identity with a local change.
func (e *Engine) Evaluate(changes []remote.ChangeElement) (*Result, error) {
	local := e.localChanges()
	remoteEntries, err := e.remoteEntries(changes)
	if err != nil {
		return nil, err
	}
	markConflicts(local, remoteEntries)
	return &Result{Local: local, Remote: remoteEntries}, nil
}

func (e *Engine) localChanges() []*Entry {
	var out []*Entry
	for _, we := range e.adapter.Changed().WorkspaceElements() {
		out = append(out, &Entry{
			Origin:   OriginLocal,
			State:    we.State,
			FullName: we.FullName,
			Type:     we.Type,
			FilePath: we.Path,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out
}

// RemoteChanges returns the newest unseen remote change of each identity, in revision order.
func (e *Engine) RemoteChanges(ctx context.Context) ([]remote.ChangeElement, error) {
	wm, err := e.watermarks.Load()
	if err != nil {
		return nil, err
	}
	changes, err := e.revisions.RetrieveOutstandingChanges(ctx, wm.MaxRevision)
	if err != nil {
		return nil, errUtils.Build(errUtils.ErrRemote).
			WithCause(err).
			WithContext("watermark", wm.MaxRevision).
			Err()
	}

	latest := make(map[metadata.Identity]remote.ChangeElement)
	for _, c := range changes {
		if wm.Seen(c) {
			continue
		}
		if prev, ok := latest[c.Identity()]; !ok || c.Revision > prev.Revision {
			latest[c.Identity()] = c
		}
	}
	out := make([]remote.ChangeElement, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	e.log.Debug("remote changes", "watermark", wm.MaxRevision, "outstanding", len(changes), "unseen", len(out))
	return out, nil
}

func (e *Engine) remoteEntries(changes []remote.ChangeElement) ([]*Entry, error) {
	var out []*Entry
	for _, c := range changes {
		locs, err := e.adapter.Locate(c.Identity())
		if err != nil {
			if errors.Is(err, errUtils.ErrUnknownType) {
				e.log.Debug("skipping remote change of unsupported type", "type", c.Type, "name", c.FullName)
				continue
			}
			return nil, err
		}

		loc := locs[0]
		for _, l := range locs {
			if l.Exists {
				loc = l
				break
			}
		}
		if !e.ignore.Accepts(loc.Path) {
			continue
		}

		state := metadata.StateChanged
		switch {
		case c.Deleted:
			state = metadata.StateDeleted
		case !loc.Exists:
			state = metadata.StateNew
		}
		out = append(out, &Entry{
			Origin:   OriginRemote,
			State:    state,
			FullName: c.FullName,
			Type:     c.Type,
			FilePath: loc.Path,
			Revision: c.Revision,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].FullName < out[j].FullName
	})
	return out, nil
}

// markConflicts flags every local and remote entry sharing an identity and links them.
func markConflicts(local, remoteEntries []*Entry) {
	byID := make(map[metadata.Identity][]*Entry)
	for _, l := range local {
		byID[l.Identity()] = append(byID[l.Identity()], l)
	}
	for _, r := range remoteEntries {
		for _, l := range byID[r.Identity()] {
			l.Conflict = true
			r.Conflict = true
			l.ConflictsWith = append(l.ConflictsWith, r.Key())
			r.ConflictsWith = append(r.ConflictsWith, l.Key())
		}
	}
}
