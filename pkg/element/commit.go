package element

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/internal/atomicfile"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/strategy"
)

// DuplicateSuffix is appended to files written next to an existing ambiguous component.
const DuplicateSuffix = ".dup"

// ManifestFilter restricts a commit to the requested identities.
type ManifestFilter interface {
	Contains(id metadata.Identity) bool
}

// CommitOptions controls how a retrieved component is materialized.
type CommitOptions struct {
	// Filter limits the commit to requested members. Nil commits everything.
	Filter ManifestFilter
	// UnsupportedContent lists type names whose content files are not written.
	UnsupportedContent []string
	// Force overwrites ambiguous components instead of writing duplicates.
	Force bool
	// Sparse keeps decomposed files that the retrieved document no longer carries.
	Sparse bool
	Logger *log.Logger
}

// CommitResult lists the absolute paths touched by a commit.
type CommitResult struct {
	New        []string
	Updated    []string
	Deleted    []string
	Duplicates []string
}

// Paths returns every path the commit touched, except duplicates.
func (r *CommitResult) Paths() []string {
	out := make([]string, 0, len(r.New)+len(r.Updated)+len(r.Deleted))
	out = append(out, r.New...)
	out = append(out, r.Updated...)
	out = append(out, r.Deleted...)
	sort.Strings(out)
	return out
}

type target struct {
	path string
	id   metadata.Identity
	data []byte
}

// Commit materializes the retrieved aggregate found below retrievedDir (aggregate layout) into
// the workspace: it decomposes the document, writes new and changed files, and removes
// decomposed files the remote no longer has.
func (a *AggregateSourceElement) Commit(retrievedDir string, opts CommitOptions) (*CommitResult, error) {
	l := logger.OrNull(opts.Logger)
	id := a.Identity()

	docPath := filepath.Join(retrievedDir, filepath.FromSlash(a.typ.AggregatePath(a.name)))
	doc, err := strategy.ReadDocument(docPath)
	if err != nil {
		return nil, err
	}
	decomposed, err := a.strategy.Decompose(doc, id)
	if err != nil {
		return nil, err
	}

	wholeAggregate := opts.Filter == nil || opts.Filter.Contains(id)

	var targets []target
	if decomposed.Container != nil && wholeAggregate {
		data, err := strategy.Serialize(decomposed.Container)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{path: a.containerPath, id: id, data: data})
	}

	for _, g := range decomposed.Children {
		for _, d := range g.Documents {
			name := strategy.ChildName(d)
			childID := metadata.Identity{Type: g.Type.Name, FullName: a.name + "." + name}
			if !wholeAggregate && !opts.Filter.Contains(childID) {
				continue
			}
			path := a.strategy.DecomposedPath(a.containerPath, g.Type, name)
			if !strategy.Within(a.pkgDir, path) {
				return nil, errUtils.Build(errUtils.ErrInvalidPath).
					WithExplanationf("decomposed path of %s falls outside package %s", childID, a.pkg).
					WithContext("path", path).
					Err()
			}
			data, err := strategy.Serialize(d)
			if err != nil {
				return nil, err
			}
			targets = append(targets, target{path: path, id: childID, data: data})
		}
	}

	result := &CommitResult{}

	if content := a.ContentPath(); content != "" && wholeAggregate && !lo.Contains(opts.UnsupportedContent, a.typ.Name) {
		src := filepath.Join(retrievedDir, filepath.FromSlash(a.typ.AggregateContentPath(a.name)))
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, errors.Wrapf(err, "read retrieved content of %s", id)
		}
		targets = append(targets, target{path: content, id: id, data: data})
	}

	for _, t := range targets {
		if err := a.writeTarget(t, opts, result, l); err != nil {
			return result, err
		}
	}

	if wholeAggregate && !opts.Sparse {
		if err := a.removeStale(targets, result); err != nil {
			return result, err
		}
	}

	sort.Strings(result.New)
	sort.Strings(result.Updated)
	sort.Strings(result.Deleted)
	sort.Strings(result.Duplicates)
	return result, nil
}

func (a *AggregateSourceElement) writeTarget(t target, opts CommitOptions, result *CommitResult, l *log.Logger) error {
	existing, err := os.ReadFile(t.path)
	switch {
	case err == nil:
		if bytes.Equal(existing, t.data) {
			if we, ok := a.elements[t.path]; ok {
				we.State = metadata.StateUnchanged
			} else {
				a.AddPath(t.path, t.id, metadata.StateUnchanged)
			}
			return nil
		}
		if a.Ambiguous && !opts.Force {
			dup := t.path + DuplicateSuffix
			if err := atomicfile.WriteFile(dup, t.data); err != nil {
				return err
			}
			a.AddPath(dup, t.id, metadata.StateDuplicate)
			result.Duplicates = append(result.Duplicates, dup)
			l.Warn("component already exists locally, wrote duplicate",
				"type", t.id.Type, "name", t.id.FullName, "path", dup, "reason", errUtils.ErrDuplicateComponent)
			return nil
		}
		if err := atomicfile.WriteFile(t.path, t.data); err != nil {
			return err
		}
		a.AddPath(t.path, t.id, metadata.StateChanged)
		result.Updated = append(result.Updated, t.path)
	case os.IsNotExist(err):
		if err := atomicfile.WriteFile(t.path, t.data); err != nil {
			return err
		}
		a.AddPath(t.path, t.id, metadata.StateNew)
		result.New = append(result.New, t.path)
	default:
		return errors.Wrapf(err, "read %s", t.path)
	}
	return nil
}

// removeStale deletes existing decomposed files the retrieved document no longer contains.
func (a *AggregateSourceElement) removeStale(targets []target, result *CommitResult) error {
	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t.path] = true
	}

	groups, err := a.strategy.DecomposedPaths(a.containerPath)
	if err != nil {
		return err
	}
	var removed []string
	for _, g := range a.filterGroups(groups) {
		for _, p := range g.Paths {
			if wanted[p] {
				continue
			}
			name, _, _ := metadata.SplitFileName(filepath.Base(p))
			a.AddPath(p, metadata.Identity{Type: g.Type.Name, FullName: a.name + "." + name}, metadata.StateDeleted)
			if err := removeFile(p); err != nil {
				return err
			}
			removed = append(removed, p)
		}
	}
	result.Deleted = append(result.Deleted, removed...)
	return a.pruneEmptyDirs(removed)
}
