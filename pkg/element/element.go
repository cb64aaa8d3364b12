// Package element models the unit of synchronization: an aggregate component together with
// every workspace file that realizes it.
package element

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/strategy"
)

// WorkspaceElement is one file's role in the sync model.
type WorkspaceElement struct {
	Type            string         `json:"type"`
	FullName        string         `json:"fullName"`
	Path            string         `json:"filePath"`
	State           metadata.State `json:"state"`
	DeleteSupported bool           `json:"deleteSupported"`
}

// Identity of the component the file belongs to. Decomposed files carry the child identity.
func (w *WorkspaceElement) Identity() metadata.Identity {
	return metadata.Identity{Type: w.Type, FullName: w.FullName}
}

// AggregateSourceElement is one logical top-level component in one package.
type AggregateSourceElement struct {
	typ           *metadata.TypeDef
	strategy      strategy.Strategy
	name          string
	pkg           string
	pkgDir        string
	containerPath string

	// Ambiguous marks a component whose retrieved copy may not be the one on disk, e.g. it
	// exists in several packages or was never synchronized. Commit then writes duplicates.
	Ambiguous bool

	elements map[string]*WorkspaceElement
}

// New creates an element for the aggregate (t, name) whose container lives at containerPath,
// inside the package pkg rooted at pkgDir.
func New(t *metadata.TypeDef, name, pkg, pkgDir, containerPath string) *AggregateSourceElement {
	return &AggregateSourceElement{
		typ:           t,
		strategy:      strategy.For(t),
		name:          name,
		pkg:           pkg,
		pkgDir:        pkgDir,
		containerPath: containerPath,
		elements:      make(map[string]*WorkspaceElement),
	}
}

func (a *AggregateSourceElement) Type() *metadata.TypeDef { return a.typ }
func (a *AggregateSourceElement) FullName() string        { return a.name }
func (a *AggregateSourceElement) Package() string         { return a.pkg }
func (a *AggregateSourceElement) PackageDir() string      { return a.pkgDir }
func (a *AggregateSourceElement) ContainerPath() string   { return a.containerPath }

func (a *AggregateSourceElement) Identity() metadata.Identity {
	return metadata.Identity{Type: a.typ.Name, FullName: a.name}
}

func (a *AggregateSourceElement) Key() metadata.Key {
	return metadata.Key{Package: a.pkg, Type: a.typ.Name, FullName: a.name}
}

// ContentPath is the content file of content types, "" otherwise.
func (a *AggregateSourceElement) ContentPath() string {
	return a.strategy.ContentPath(a.containerPath)
}

// Add attaches a workspace element, replacing any previous element for the same path.
func (a *AggregateSourceElement) Add(we *WorkspaceElement) {
	a.elements[we.Path] = we
}

// AddPath attaches the file at path with the given state, deriving its identity.
func (a *AggregateSourceElement) AddPath(path string, id metadata.Identity, state metadata.State) *WorkspaceElement {
	we := &WorkspaceElement{
		Type:            id.Type,
		FullName:        id.FullName,
		Path:            path,
		State:           state,
		DeleteSupported: a.typ.DeleteSupported,
	}
	a.Add(we)
	return we
}

// WorkspaceElements returns the attached elements sorted by path.
func (a *AggregateSourceElement) WorkspaceElements() []*WorkspaceElement {
	out := make([]*WorkspaceElement, 0, len(a.elements))
	for _, we := range a.elements {
		out = append(out, we)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// WorkspaceElement returns the element attached for path.
func (a *AggregateSourceElement) WorkspaceElement(path string) (*WorkspaceElement, bool) {
	we, ok := a.elements[path]
	return we, ok
}

// HasChanges reports whether any attached file is New, Changed or Deleted.
func (a *AggregateSourceElement) HasChanges() bool {
	for _, we := range a.elements {
		if we.State.IsChanged() {
			return true
		}
	}
	return false
}

// DeletedChildren returns the deleted decomposed files, whose identities are child identities.
func (a *AggregateSourceElement) DeletedChildren() []*WorkspaceElement {
	var out []*WorkspaceElement
	for _, we := range a.WorkspaceElements() {
		if we.State == metadata.StateDeleted && we.Type != a.typ.Name {
			out = append(out, we)
		}
	}
	return out
}

// MetadataPaths returns the existing container and decomposed files of the component.
func (a *AggregateSourceElement) MetadataPaths() ([]string, error) {
	var out []string
	if a.typ.HasContainer() && exists(a.containerPath) {
		out = append(out, a.containerPath)
	}
	groups, err := a.strategy.DecomposedPaths(a.containerPath)
	if err != nil {
		return nil, err
	}
	for _, g := range a.filterGroups(groups) {
		out = append(out, g.Paths...)
	}
	return out, nil
}

// ContentPaths returns the existing content files of the component.
func (a *AggregateSourceElement) ContentPaths() []string {
	if p := a.ContentPath(); p != "" && exists(p) {
		return []string{p}
	}
	return nil
}

// filterGroups drops decomposed paths outside the owning package.
func (a *AggregateSourceElement) filterGroups(groups []strategy.PathGroup) []strategy.PathGroup {
	var out []strategy.PathGroup
	for _, g := range groups {
		var paths []string
		for _, p := range g.Paths {
			if strategy.Within(a.pkgDir, p) {
				paths = append(paths, p)
			}
		}
		if len(paths) > 0 {
			out = append(out, strategy.PathGroup{Type: g.Type, Paths: paths})
		}
	}
	return out
}

// IsDeleted reports whether every file of the component is gone. A partially deleted
// component is a structural inconsistency.
func (a *AggregateSourceElement) IsDeleted() (bool, error) {
	containerGone := !exists(a.containerPath)

	switch {
	case a.typ.HasContent():
		contentGone := !exists(a.ContentPath())
		if containerGone != contentGone {
			missing, present := a.containerPath, a.ContentPath()
			if contentGone {
				missing, present = present, missing
			}
			return false, errUtils.Structural(a.containerPath,
				"%s %s: %s is missing while %s exists", a.typ.Name, a.name, missing, present)
		}
		return containerGone, nil

	case a.typ.Composable():
		children, err := a.MetadataPaths()
		if err != nil {
			return false, err
		}
		if !a.typ.HasContainer() {
			return len(children) == 0, nil
		}
		if containerGone && len(children) > 0 {
			return false, errUtils.Structural(a.containerPath,
				"%s %s: container deleted while %d decomposed files remain", a.typ.Name, a.name, len(children))
		}
		return containerGone, nil

	default:
		return containerGone, nil
	}
}

// MarkForDelete flags every attached element Deleted, removes the component's files and prunes
// directories left empty. It returns the removed paths.
func (a *AggregateSourceElement) MarkForDelete() ([]string, error) {
	paths, err := a.MetadataPaths()
	if err != nil {
		return nil, err
	}
	paths = append(paths, a.ContentPaths()...)

	for _, p := range paths {
		if _, ok := a.elements[p]; !ok {
			id, err := a.identityOf(p)
			if err != nil {
				return nil, err
			}
			a.AddPath(p, id, metadata.StateDeleted)
		}
	}
	for _, we := range a.elements {
		we.State = metadata.StateDeleted
	}

	var removed []string
	for _, p := range paths {
		if err := removeFile(p); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	if a.typ.Composable() {
		if err := a.pruneEmptyDirs(removed); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// MarkChildForDelete removes one decomposed file and flags its element Deleted.
func (a *AggregateSourceElement) MarkChildForDelete(path string, id metadata.Identity) (bool, error) {
	if !exists(path) {
		return false, nil
	}
	we, ok := a.elements[path]
	if !ok {
		we = a.AddPath(path, id, metadata.StateDeleted)
	}
	we.State = metadata.StateDeleted
	if err := removeFile(path); err != nil {
		return false, err
	}
	return true, a.pruneEmptyDirs([]string{path})
}

// identityOf derives the identity of one of the component's files.
func (a *AggregateSourceElement) identityOf(path string) (metadata.Identity, error) {
	if path == a.containerPath || path == a.ContentPath() {
		return a.Identity(), nil
	}
	name, suffix, _ := metadata.SplitFileName(filepath.Base(path))
	for _, c := range a.typ.Children {
		if c.Suffix == suffix {
			return metadata.Identity{Type: c.Name, FullName: a.name + "." + name}, nil
		}
	}
	return metadata.Identity{}, errUtils.Build(errUtils.ErrInvalidPath).
		WithExplanationf("%s does not belong to %s", path, a.Identity()).
		Err()
}

// pruneEmptyDirs removes now-empty directories above removed files, stopping at the package root.
func (a *AggregateSourceElement) pruneEmptyDirs(removed []string) error {
	for _, p := range removed {
		for dir := filepath.Dir(p); dir != a.pkgDir && strategy.Within(a.pkgDir, dir); dir = filepath.Dir(dir) {
			entries, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return errors.Wrapf(err, "read dir %s", dir)
			}
			if len(entries) > 0 {
				break
			}
			if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "remove empty dir %s", dir)
			}
		}
	}
	return nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}
