// Package workspace builds aggregate elements from the tracked workspace and folds retrieved
// or deleted remote components into them.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/element"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/project"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
	"github.com/yuya-takeyama/srcsync/pkg/strategy"
	"github.com/yuya-takeyama/srcsync/pkg/tracker"
)

// DefaultSubdir is where brand-new components land inside the default package.
var DefaultSubdir = filepath.Join("main", "default")

type Options struct {
	Project  *project.Project
	Tracker  *tracker.Tracker
	Registry *metadata.Registry
	Logger   *log.Logger
}

// Adapter caches two collections: the changed elements, built on construction, and every
// element, built on first use. Both are rebuilt after Invalidate.
type Adapter struct {
	project  *project.Project
	tracker  *tracker.Tracker
	registry *metadata.Registry
	log      *log.Logger

	changed *element.Collection
	all     *element.Collection
}

func New(opts Options) (*Adapter, error) {
	reg := opts.Registry
	if reg == nil {
		reg = metadata.DefaultRegistry()
	}
	a := &Adapter{
		project:  opts.Project,
		tracker:  opts.Tracker,
		registry: reg,
		log:      logger.OrNull(opts.Logger),
	}
	if err := a.Invalidate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) Project() *project.Project    { return a.project }
func (a *Adapter) Tracker() *tracker.Tracker    { return a.tracker }
func (a *Adapter) Registry() *metadata.Registry { return a.registry }

// Changed returns the elements with at least one New, Changed or Deleted file.
func (a *Adapter) Changed() *element.Collection {
	return a.changed
}

// All returns every tracked element.
func (a *Adapter) All() (*element.Collection, error) {
	if a.all == nil {
		all, err := a.build(a.tracker.Infos())
		if err != nil {
			return nil, err
		}
		a.all = all
	}
	return a.all, nil
}

// Invalidate drops both caches and rebuilds the changed collection from the tracker.
// Call it after the workspace or the tracker changed.
func (a *Adapter) Invalidate() error {
	a.all = nil
	changed, err := a.build(a.tracker.Changed())
	if err != nil {
		return err
	}
	a.changed = changed
	return nil
}

func (a *Adapter) build(infos []*tracker.SourcePathInfo) (*element.Collection, error) {
	c := element.NewCollection(a.project.Packages())
	for _, info := range infos {
		if info.IsDirectory || info.Package == "" {
			continue
		}
		loc, err := strategy.Locate(a.registry, info.Path)
		if err != nil {
			if errors.Is(err, errUtils.ErrUnknownType) {
				continue
			}
			a.log.Warn("skipping misplaced file", "path", info.Path, "err", err)
			continue
		}

		agg, ok := c.Get(info.Package, loc.Aggregate())
		if !ok {
			agg = element.New(loc.Type, loc.AggregateName, info.Package, a.project.PackagePath(info.Package), loc.ContainerPath)
			c.Add(agg)
		}
		agg.AddPath(info.Path, loc.Identity, info.State)
	}
	return c, nil
}

// Location is where a component lives in the workspace, or would be created.
type Location struct {
	Package string
	// Path is the file representing the identity: a container, content metadata or decomposed file.
	Path string
	// Exists is false for components without a local counterpart.
	Exists bool
}

// Locate returns the local counterparts of id in package order. A component without one gets
// its default location in the default package.
func (a *Adapter) Locate(id metadata.Identity) ([]Location, error) {
	t, child, err := a.registry.Resolve(id.Type)
	if err != nil {
		return nil, err
	}
	aggID, err := a.registry.AggregateIdentity(id)
	if err != nil {
		return nil, err
	}
	all, err := a.All()
	if err != nil {
		return nil, err
	}

	candidates := all.Find(aggID)
	if len(candidates) == 0 {
		pkg := a.project.DefaultPackage()
		container := a.defaultContainerPath(t, aggID.FullName)
		return []Location{{Package: pkg, Path: identityPath(t, child, container, id)}}, nil
	}

	var out []Location
	for _, c := range candidates {
		path := identityPath(t, child, c.ContainerPath(), id)
		_, tracked := c.WorkspaceElement(path)
		if child == nil && !t.HasContainer() {
			tracked = len(c.WorkspaceElements()) > 0
		}
		out = append(out, Location{Package: c.Package(), Path: path, Exists: tracked || fileExists(path)})
	}
	return out, nil
}

func identityPath(t *metadata.TypeDef, child *metadata.ChildType, containerPath string, id metadata.Identity) string {
	if child == nil {
		return containerPath
	}
	return strategy.For(t).DecomposedPath(containerPath, child, metadata.ChildName(id.FullName))
}

func (a *Adapter) defaultContainerPath(t *metadata.TypeDef, name string) string {
	typeDir := filepath.Join(a.project.PackagePath(a.project.DefaultPackage()), DefaultSubdir, t.Directory)
	return strategy.For(t).ContainerPath(typeDir, name)
}

// ProcessRetrievedComponent folds one retrieved file property into acc and returns the
// aggregate element it belongs to. Components unknown locally are placed in the default
// package. Components found in several packages, or never synchronized, are marked ambiguous.
func (a *Adapter) ProcessRetrievedComponent(fp remote.FileProperty, acc *element.Collection) (*element.AggregateSourceElement, error) {
	t, _, err := a.registry.Resolve(fp.Type)
	if err != nil {
		return nil, err
	}
	aggID, err := a.registry.AggregateIdentity(fp.Identity())
	if err != nil {
		return nil, err
	}
	if found := acc.Find(aggID); len(found) > 0 {
		return found[0], nil
	}

	all, err := a.All()
	if err != nil {
		return nil, err
	}

	var agg *element.AggregateSourceElement
	candidates := all.Find(aggID)
	if len(candidates) == 0 {
		pkg := a.project.DefaultPackage()
		agg = element.New(t, aggID.FullName, pkg, a.project.PackagePath(pkg), a.defaultContainerPath(t, aggID.FullName))
	} else {
		local := candidates[0]
		agg = element.New(t, aggID.FullName, local.Package(), local.PackageDir(), local.ContainerPath())
		agg.Ambiguous = len(candidates) > 1 || !a.synced(local)
		if len(candidates) > 1 {
			a.log.Warn("component exists in several packages, using the first",
				"type", aggID.Type, "name", aggID.FullName, "package", local.Package())
		}
	}
	acc.Add(agg)
	return agg, nil
}

func (a *Adapter) synced(agg *element.AggregateSourceElement) bool {
	for _, we := range agg.WorkspaceElements() {
		if a.tracker.Synced(we.Path) {
			return true
		}
	}
	return false
}

// ProcessObsoleteComponent applies a remote deletion: the component, or the single decomposed
// child, is removed from every package holding it. The deletions are recorded in acc and the
// removed paths returned.
func (a *Adapter) ProcessObsoleteComponent(change remote.ChangeElement, acc *element.Collection) ([]string, error) {
	t, child, err := a.registry.Resolve(change.Type)
	if err != nil {
		return nil, err
	}
	id := change.Identity()
	aggID, err := a.registry.AggregateIdentity(id)
	if err != nil {
		return nil, err
	}
	all, err := a.All()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, local := range all.Find(aggID) {
		agg, ok := acc.Get(local.Package(), aggID)
		if !ok {
			agg = element.New(t, aggID.FullName, local.Package(), local.PackageDir(), local.ContainerPath())
			acc.Add(agg)
		}

		if child != nil {
			path := identityPath(t, child, agg.ContainerPath(), id)
			ok, err := agg.MarkChildForDelete(path, id)
			if err != nil {
				return removed, err
			}
			if ok {
				removed = append(removed, path)
			}
			continue
		}

		paths, err := agg.MarkForDelete()
		removed = append(removed, paths...)
		if err != nil {
			return removed, err
		}
	}
	if len(removed) > 0 {
		a.log.Info("removed component deleted remotely", "type", id.Type, "name", id.FullName, "files", len(removed))
	}
	return removed, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
