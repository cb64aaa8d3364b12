// Package syncer drives push and pull between the workspace and a remote store.
package syncer

import (
	"context"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/internal/ignore"
	"github.com/yuya-takeyama/srcsync/pkg/element"
	"github.com/yuya-takeyama/srcsync/pkg/events"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/project"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
	"github.com/yuya-takeyama/srcsync/pkg/status"
	"github.com/yuya-takeyama/srcsync/pkg/tracker"
	"github.com/yuya-takeyama/srcsync/pkg/workspace"
)

// FileEntry is one file sent or received: {type, fullName, filePath, state, deleteSupported}.
type FileEntry = element.WorkspaceElement

type Options struct {
	Adapter    *workspace.Adapter
	Remote     remote.Remote
	Watermarks remote.WatermarkStore
	Ignore     ignore.Predicate
	// Events receives lifecycle notifications. Nil drops them.
	Events *events.Bus
	// Chunk bounds the revision queries issued after a push.
	Chunk  remote.ChunkOptions
	Logger *log.Logger
}

// Syncer pushes and pulls one workspace against one remote.
type Syncer struct {
	adapter    *workspace.Adapter
	remote     remote.Remote
	watermarks remote.WatermarkStore
	status     *status.Engine
	events     *events.Bus
	chunk      remote.ChunkOptions
	log        *log.Logger
}

func New(opts Options) *Syncer {
	l := logger.OrNull(opts.Logger)
	return &Syncer{
		adapter:    opts.Adapter,
		remote:     opts.Remote,
		watermarks: opts.Watermarks,
		status: status.New(status.Options{
			Adapter:    opts.Adapter,
			Revisions:  opts.Remote,
			Watermarks: opts.Watermarks,
			Ignore:     opts.Ignore,
			Logger:     l,
		}),
		events: opts.Events,
		chunk:  opts.Chunk,
		log:    l,
	}
}

// Status reports local and remote changes with the same engine push and pull consult.
func (s *Syncer) Status(ctx context.Context, req status.Request) (*status.Result, error) {
	return s.status.Compute(ctx, req)
}

func (s *Syncer) project() *project.Project { return s.adapter.Project() }
func (s *Syncer) tracker() *tracker.Tracker { return s.adapter.Tracker() }

func (s *Syncer) pollOptions() remote.PollOptions {
	cfg := s.project().Config()
	return remote.PollOptions{Interval: cfg.PollInterval, Wait: cfg.Wait}
}

func (s *Syncer) publish(ctx context.Context, topic events.Topic, pkg, jobID string, entries []FileEntry) error {
	return s.events.Publish(ctx, events.Event{Topic: topic, Package: pkg, JobID: jobID, Entries: entries})
}

// fatal reports errors that must abort the whole batch instead of a single component.
func fatal(err error) bool {
	return errors.Is(err, errUtils.ErrStructuralInconsistency) || errors.Is(err, errUtils.ErrParse)
}

func componentFailure(id metadata.Identity, fileName string, err error) errUtils.ComponentFailure {
	return errUtils.ComponentFailure{Type: id.Type, FullName: id.FullName, FileName: fileName, Problem: err.Error()}
}

// entriesOf flattens the workspace elements of aggs, optionally keeping only some states.
func entriesOf(aggs []*element.AggregateSourceElement, keep func(metadata.State) bool) []FileEntry {
	var out []FileEntry
	for _, agg := range aggs {
		for _, we := range agg.WorkspaceElements() {
			if keep == nil || keep(we.State) {
				out = append(out, *we)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func paths(entries []FileEntry) []string {
	return lo.Map(entries, func(e FileEntry, _ int) string { return e.Path })
}

func scratchDir(pattern string) (string, func(), error) {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", nil, errors.Wrap(err, "create scratch directory")
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
