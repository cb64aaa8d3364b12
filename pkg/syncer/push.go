package syncer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/element"
	"github.com/yuya-takeyama/srcsync/pkg/events"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
	"github.com/yuya-takeyama/srcsync/pkg/status"
)

type PushOptions struct {
	// Force deploys even when local changes conflict with remote ones.
	Force bool
}

type PushResult struct {
	Files []FileEntry `json:"outboundFiles"`
}

// packagePush is the outcome of deploying one package.
type packagePush struct {
	jobID     string
	accepted  []*element.AggregateSourceElement
	succeeded []metadata.Identity
	failed    []errUtils.ComponentFailure
}

// Push deploys every changed element, one package at a time in declared order. Packages after
// one with failed components are not deployed. The baseline records only what the remote
// accepted, so a retry resubmits the failed components.
func (s *Syncer) Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	st, err := s.status.Compute(ctx, status.Request{Local: true, Remote: true})
	if err != nil {
		return nil, err
	}
	if cerr := st.ConflictError(); cerr != nil {
		if !opts.Force {
			return nil, cerr
		}
		s.log.Warn("pushing over conflicts", "conflicts", len(st.Conflicts()))
	}

	changed := s.adapter.Changed()
	result := &PushResult{}
	if changed.Len() == 0 {
		s.log.Info("no local changes to push")
		return result, nil
	}

	tr := s.tracker()
	if err := tr.Backup(); err != nil {
		return nil, err
	}

	var (
		succeeded []metadata.Identity
		failed    []errUtils.ComponentFailure
		pushedIDs []metadata.Identity
	)
	// abort restores the baseline and acknowledges the packages already deployed.
	abort := func(err error) (*PushResult, error) {
		if rerr := tr.Revert(); rerr != nil {
			s.log.Error("failed to restore baseline", "err", rerr)
		}
		s.recordPushed(ctx, pushedIDs)
		return nil, err
	}
	for _, pkg := range changed.Packages() {
		aggs := changed.InPackage(pkg)
		if len(aggs) == 0 {
			continue
		}
		out, err := s.pushPackage(ctx, pkg, aggs)
		if err != nil {
			return abort(err)
		}

		pushed := entriesOf(out.accepted, nil)
		tr.Accept(paths(pushed)...)
		result.Files = append(result.Files, pushed...)
		succeeded = append(succeeded, out.succeeded...)
		pushedIDs = append(pushedIDs, identities(out.accepted)...)
		failed = append(failed, out.failed...)

		if err := s.publish(ctx, events.PostDeploy, pkg, out.jobID, pushed); err != nil {
			return abort(err)
		}
		if len(out.failed) > 0 {
			s.log.Warn("stopping after package with failed components", "package", pkg, "failed", len(out.failed))
			break
		}
	}

	if err := tr.Save(); err != nil {
		return abort(err)
	}
	if err := tr.DiscardBackup(); err != nil {
		s.log.Warn("failed to remove baseline backup", "err", err)
	}
	if err := s.adapter.Invalidate(); err != nil {
		return nil, err
	}

	s.recordPushed(ctx, pushedIDs)

	if len(failed) > 0 {
		return result, &errUtils.PartialFailureError{
			Operation: "push",
			Succeeded: lo.Map(succeeded, func(id metadata.Identity, _ int) string { return id.String() }),
			Failed:    failed,
		}
	}
	return result, nil
}

// pushPackage composes the changed elements of one package, deploys them and maps the
// component results back to elements. Errors returned abort the whole push.
func (s *Syncer) pushPackage(ctx context.Context, pkg string, aggs []*element.AggregateSourceElement) (*packagePush, error) {
	dir, cleanup, err := scratchDir("srcsync-deploy-")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cfg := s.project().Config()
	manifest := remote.NewManifest(cfg.APIVersion)
	destructive := remote.NewManifest(cfg.APIVersion)
	owners := make(map[metadata.Identity]*element.AggregateSourceElement)
	out := &packagePush{}

	phase := logger.StartPhase(s.log, "compose", len(aggs))
	var staged []*element.AggregateSourceElement
	for _, agg := range aggs {
		id := agg.Identity()
		deleted, err := agg.IsDeleted()
		if err != nil {
			return nil, err
		}

		if deleted {
			if !agg.Type().DeleteSupported {
				out.failed = append(out.failed, errUtils.ComponentFailure{
					Type: id.Type, FullName: id.FullName, FileName: agg.ContainerPath(),
					Problem: "deleting " + id.Type + " is not supported",
				})
				continue
			}
			destructive.Add(id)
			owners[id] = agg
			staged = append(staged, agg)
			phase.Item(agg.ContainerPath(), "delete")
			continue
		}

		if _, err := agg.ComposeMetadata(dir, cfg.SparseCompose); err != nil {
			if fatal(err) {
				return nil, err
			}
			out.failed = append(out.failed, componentFailure(id, agg.ContainerPath(), err))
			continue
		}
		manifest.Add(id)
		owners[id] = agg
		for _, we := range agg.DeletedChildren() {
			destructive.Add(we.Identity())
			owners[we.Identity()] = agg
		}
		staged = append(staged, agg)
		phase.Item(agg.ContainerPath(), "deploy")
	}
	phase.Complete()

	if len(staged) == 0 {
		return out, nil
	}

	data, err := archive(dir, manifest, destructive)
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, events.PreDeploy, pkg, "", entriesOf(staged, nil)); err != nil {
		return nil, err
	}

	job, err := s.remote.Deploy(ctx, data, remote.DeployOptions{APIVersion: cfg.APIVersion})
	if err != nil {
		return nil, errUtils.Build(errUtils.ErrRemote).WithCause(err).WithContext("package", pkg).Err()
	}
	out.jobID = job.ID()
	s.log.Info("deploying", "package", pkg, "job", out.jobID, "components", manifest.Len()+destructive.Len())

	res, err := remote.Await(ctx, job, s.pollOptions())
	if err != nil {
		return nil, err
	}
	reinterpret(res)
	s.log.Info("deploy finished", "package", pkg, "job", out.jobID, "status", res.Status)

	rejected := make(map[*element.AggregateSourceElement]bool)
	for _, c := range res.Components {
		agg := owners[c.Identity()]
		if c.Success {
			out.succeeded = append(out.succeeded, c.Identity())
			continue
		}
		out.failed = append(out.failed, errUtils.ComponentFailure{
			Type: c.Type, FullName: c.FullName, FileName: c.FileName,
			Problem: c.Problem, Line: c.Line, Column: c.Column,
		})
		if agg != nil {
			rejected[agg] = true
		}
	}
	for _, agg := range staged {
		if !rejected[agg] {
			out.accepted = append(out.accepted, agg)
		}
	}
	return out, nil
}

// identities lists the aggregates and the changed children of aggs. The remote records a
// revision for each of them.
func identities(aggs []*element.AggregateSourceElement) []metadata.Identity {
	var out []metadata.Identity
	for _, agg := range aggs {
		out = append(out, agg.Identity())
		for _, we := range agg.WorkspaceElements() {
			out = append(out, we.Identity())
		}
	}
	return lo.Uniq(out)
}

// reinterpret treats deleting a component the remote no longer has as a success.
func reinterpret(res *remote.DeployResult) {
	for i := range res.Components {
		c := &res.Components[i]
		if !c.Success && c.Deleted && c.Problem == remote.ProblemNotFound {
			c.Success = true
			c.Problem = ""
		}
	}
	res.Recompute()
}

// archive adds the manifests to the composed tree in dir and zips it.
func archive(dir string, manifest, destructive *remote.Manifest) ([]byte, error) {
	files := map[string]*remote.Manifest{remote.ManifestFileName: manifest}
	if !destructive.Empty() {
		files[remote.DestructiveFileName] = destructive
	}
	for name, m := range files {
		data, err := m.XML()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return nil, errUtils.Build(errUtils.ErrRemote).WithCause(err).WithContext("file", name).Err()
		}
	}
	return remote.ZipDir(dir)
}

// recordPushed keeps the components this workspace just deployed from being reported back as
// remote changes. The watermark only moves when every outstanding change is one of them, so a
// change another client made meanwhile is never skipped.
func (s *Syncer) recordPushed(ctx context.Context, ids []metadata.Identity) {
	if len(ids) == 0 {
		return
	}
	changes, err := remote.FetchRevisions(ctx, s.remote, ids, s.chunk)
	if err != nil {
		s.log.Warn("failed to fetch revisions of pushed components", "err", err)
		return
	}
	revisions := make(map[metadata.Identity]int64, len(changes))
	for _, c := range changes {
		if c.Revision > revisions[c.Identity()] {
			revisions[c.Identity()] = c.Revision
		}
	}
	if err := s.watermarks.Acknowledge(revisions); err != nil {
		s.log.Warn("failed to record pushed revisions", "err", err)
		return
	}
	if err := s.advancePastOwn(ctx); err != nil {
		s.log.Warn("failed to advance watermark", "err", err)
	}
}

// advancePastOwn moves the watermark to the newest outstanding revision when all outstanding
// changes were produced by this workspace.
func (s *Syncer) advancePastOwn(ctx context.Context) error {
	wm, err := s.watermarks.Load()
	if err != nil {
		return err
	}
	outstanding, err := s.remote.RetrieveOutstandingChanges(ctx, wm.MaxRevision)
	if err != nil {
		return errUtils.Build(errUtils.ErrRemote).WithCause(err).Err()
	}
	for _, c := range outstanding {
		if !wm.Seen(c) {
			s.log.Debug("keeping watermark below foreign change", "type", c.Type, "name", c.FullName, "revision", c.Revision)
			return nil
		}
	}
	return s.watermarks.Advance(remote.MaxRevision(outstanding))
}
