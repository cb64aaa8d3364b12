package element

import (
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/cockroachdb/errors"
	cp "github.com/otiai10/copy"

	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/strategy"
)

// ComposeMetadata recomposes the aggregate document from the workspace files and writes it,
// plus any content file, below scratchDir in aggregate layout. It returns the written paths
// relative to scratchDir. In sparse mode only New or Changed decomposed files are included.
func (a *AggregateSourceElement) ComposeMetadata(scratchDir string, sparse bool) ([]string, error) {
	var container *etree.Document
	if a.typ.HasContainer() {
		doc, err := strategy.ReadDocument(a.containerPath)
		if err != nil {
			return nil, err
		}
		container = doc
	}

	groups, err := a.strategy.DecomposedPaths(a.containerPath)
	if err != nil {
		return nil, err
	}

	var children []strategy.ChildGroup
	for _, g := range a.filterGroups(groups) {
		group := strategy.ChildGroup{Type: g.Type}
		for _, p := range g.Paths {
			if sparse && !a.changed(p) {
				continue
			}
			doc, err := strategy.ReadDocument(p)
			if err != nil {
				return nil, err
			}
			group.Documents = append(group.Documents, doc)
		}
		if len(group.Documents) > 0 {
			children = append(children, group)
		}
	}

	doc, err := a.strategy.Compose(container, children)
	if err != nil {
		return nil, errors.Wrapf(err, "compose %s", a.Identity())
	}
	data, err := strategy.Serialize(doc)
	if err != nil {
		return nil, err
	}

	rel := a.typ.AggregatePath(a.name)
	if err := writeScratch(filepath.Join(scratchDir, filepath.FromSlash(rel)), data); err != nil {
		return nil, err
	}
	written := []string{rel}

	if content := a.ContentPath(); content != "" {
		contentRel := a.typ.AggregateContentPath(a.name)
		if err := cp.Copy(content, filepath.Join(scratchDir, filepath.FromSlash(contentRel))); err != nil {
			return nil, errors.Wrapf(err, "copy content of %s", a.Identity())
		}
		written = append(written, contentRel)
	}
	return written, nil
}

func (a *AggregateSourceElement) changed(path string) bool {
	we, ok := a.elements[path]
	return ok && (we.State == metadata.StateNew || we.State == metadata.StateChanged)
}

// writeScratch writes into the throwaway deploy tree, which needs no atomic replace.
func writeScratch(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
