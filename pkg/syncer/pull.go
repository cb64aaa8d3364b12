package syncer

import (
	"context"

	"github.com/samber/lo"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/element"
	"github.com/yuya-takeyama/srcsync/pkg/events"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
	"github.com/yuya-takeyama/srcsync/pkg/status"
)

type PullOptions struct {
	// Force pulls over conflicting local changes and overwrites ambiguous components instead
	// of writing duplicates.
	Force bool
}

type PullResult struct {
	Files []FileEntry `json:"inboundFiles"`
}

// pullState accumulates the outcome of one pull.
type pullState struct {
	acc       *element.Collection
	touched   []string
	succeeded []string
	failed    []errUtils.ComponentFailure
}

func (p *pullState) fail(id metadata.Identity, fileName string, err error) {
	p.failed = append(p.failed, componentFailure(id, fileName, err))
}

// Pull retrieves every unseen remote change and writes it into the workspace. The watermark
// only moves when every change was applied, so a failed pull is delivered again.
func (s *Syncer) Pull(ctx context.Context, opts PullOptions) (*PullResult, error) {
	changes, err := s.status.RemoteChanges(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.status.Evaluate(changes)
	if err != nil {
		return nil, err
	}
	if cerr := st.ConflictError(); cerr != nil {
		if !opts.Force {
			return nil, cerr
		}
		s.log.Warn("pulling over conflicts", "conflicts", len(st.Conflicts()))
	}

	result := &PullResult{}
	if len(st.Remote) == 0 {
		s.log.Info("no remote changes to pull")
		if err := s.watermarks.Advance(remote.MaxRevision(changes)); err != nil {
			return nil, err
		}
		return result, nil
	}

	state := &pullState{acc: element.NewCollection(s.project().Packages())}
	var retrieve, obsolete []*status.Entry
	for _, e := range st.Remote {
		if e.State == metadata.StateDeleted {
			obsolete = append(obsolete, e)
		} else {
			retrieve = append(retrieve, e)
		}
	}

	jobID, err := s.retrieve(ctx, retrieve, opts, state)
	if err != nil {
		return nil, err
	}
	for _, e := range obsolete {
		change := remote.ChangeElement{Type: e.Type, FullName: e.FullName, Revision: e.Revision, Deleted: true}
		removed, err := s.adapter.ProcessObsoleteComponent(change, state.acc)
		state.touched = append(state.touched, removed...)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			state.fail(e.Identity(), e.FilePath, err)
			continue
		}
		state.succeeded = append(state.succeeded, e.Identity().String())
	}

	tr := s.tracker()
	touched := lo.Uniq(state.touched)
	if err := tr.Refresh(touched...); err != nil {
		return nil, err
	}
	tr.Accept(touched...)
	if err := tr.Save(); err != nil {
		return nil, err
	}
	if err := s.adapter.Invalidate(); err != nil {
		return nil, err
	}

	result.Files = entriesOf(state.acc.All(), func(ms metadata.State) bool { return ms != metadata.StateUnchanged })
	for _, topic := range []events.Topic{events.PostRetrieve, events.PostSourceUpdate} {
		if err := s.publish(ctx, topic, "", jobID, result.Files); err != nil {
			return result, err
		}
	}

	if len(state.failed) > 0 {
		return result, &errUtils.PartialFailureError{
			Operation: "pull",
			Succeeded: state.succeeded,
			Failed:    state.failed,
		}
	}
	if err := s.watermarks.Advance(remote.MaxRevision(changes)); err != nil {
		return result, err
	}
	return result, nil
}

// retrieve fetches the changed components and commits each retrieved aggregate. Failures of
// single aggregates are recorded in state; errors returned abort the pull.
func (s *Syncer) retrieve(ctx context.Context, entries []*status.Entry, opts PullOptions, state *pullState) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	cfg := s.project().Config()
	manifest := remote.NewManifest(cfg.APIVersion)
	requested := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		manifest.Add(e.Identity())
		entry := FileEntry{Type: e.Type, FullName: e.FullName, Path: e.FilePath, State: e.State}
		if t, _, err := s.adapter.Registry().Resolve(e.Type); err == nil {
			entry.DeleteSupported = t.DeleteSupported
		}
		requested = append(requested, entry)
	}

	if err := s.publish(ctx, events.PreRetrieve, "", "", requested); err != nil {
		return "", err
	}
	job, err := s.remote.Retrieve(ctx, manifest, remote.RetrieveOptions{APIVersion: cfg.APIVersion})
	if err != nil {
		return "", errUtils.Build(errUtils.ErrRemote).WithCause(err).Err()
	}
	s.log.Info("retrieving", "job", job.ID(), "components", manifest.Len())
	res, err := remote.Await(ctx, job, s.pollOptions())
	if err != nil {
		return "", err
	}
	for _, m := range res.Messages {
		s.log.Warn("retrieve message", "file", m.FileName, "problem", m.Problem)
	}

	dir, cleanup, err := scratchDir("srcsync-retrieve-")
	if err != nil {
		return "", err
	}
	defer cleanup()
	if err := remote.Unzip(res.ZipFile, dir); err != nil {
		return "", errUtils.Build(errUtils.ErrRemote).WithCause(err).WithContext("job", job.ID()).Err()
	}

	var retrieved []*element.AggregateSourceElement
	for _, fp := range res.FileProperties {
		agg, err := s.adapter.ProcessRetrievedComponent(fp, state.acc)
		if err != nil {
			state.fail(fp.Identity(), fp.FileName, err)
			continue
		}
		if !lo.Contains(retrieved, agg) {
			retrieved = append(retrieved, agg)
		}
	}

	phase := logger.StartPhase(s.log, "commit", len(retrieved))
	for _, agg := range retrieved {
		cr, err := agg.Commit(dir, element.CommitOptions{
			Filter: manifest,
			Force:  opts.Force,
			Sparse: cfg.SparseCompose,
			Logger: s.log,
		})
		if cr != nil {
			state.touched = append(state.touched, cr.Paths()...)
		}
		if err != nil {
			if fatal(err) {
				return "", err
			}
			state.fail(agg.Identity(), agg.ContainerPath(), err)
			continue
		}
		state.succeeded = append(state.succeeded, agg.Identity().String())
		for _, p := range cr.Paths() {
			phase.Item(p, "write")
		}
		for _, p := range cr.Duplicates {
			phase.Item(p, "duplicate")
		}
	}
	phase.Complete()
	return job.ID(), nil
}
