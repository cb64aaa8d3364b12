package strategy

import (
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"github.com/cockroachdb/errors"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

// simple tracks a component as a single non-composable unit.
type simple struct {
	t *metadata.TypeDef
}

func (s *simple) Type() *metadata.TypeDef { return s.t }

func (s *simple) Decompose(doc *etree.Document, id metadata.Identity) (*Decomposed, error) {
	if err := checkRoot(doc, s.t.Name, id); err != nil {
		return nil, err
	}
	return &Decomposed{Container: newDocument(doc.Root().Copy())}, nil
}

func (s *simple) Compose(container *etree.Document, children []ChildGroup) (*etree.Document, error) {
	if container == nil {
		return nil, errors.Newf("%s: container document is required", s.t.Name)
	}
	if len(children) > 0 {
		return nil, errors.Newf("%s: type has no decomposed children", s.t.Name)
	}
	return newDocument(container.Root().Copy()), nil
}

func (s *simple) Canonicalize(doc *etree.Document) (*etree.Document, error) {
	return newDocument(doc.Root().Copy()), nil
}

func (s *simple) ContainerPath(typeDir, name string) string {
	return filepath.Join(typeDir, s.t.MetadataFileName(name))
}

func (s *simple) ContentPath(string) string { return "" }

func (s *simple) DecomposedPath(string, *metadata.ChildType, string) string { return "" }

func (s *simple) DecomposedPaths(string) ([]PathGroup, error) { return nil, nil }

// content is a simple type whose metadata file accompanies a content file (Foo.cls + Foo.cls-meta.xml).
type content struct {
	simple
}

func (c *content) ContentPath(containerPath string) string {
	return strings.TrimSuffix(containerPath, metadata.MetaSuffix)
}

func checkRoot(doc *etree.Document, tag string, id metadata.Identity) error {
	root := doc.Root()
	if root == nil {
		return errUtils.Parse(id.String(), errors.New("document has no root element"))
	}
	if root.Tag != tag {
		return errUtils.Parse(id.String(), errors.Newf("expected root <%s>, found <%s>", tag, root.Tag))
	}
	return nil
}
