package strategy

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/cockroachdb/errors"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

// nested extracts configured child elements into their own documents.
type nested struct {
	t *metadata.TypeDef
}

func (n *nested) Type() *metadata.TypeDef { return n.t }

func (n *nested) Decompose(doc *etree.Document, id metadata.Identity) (*Decomposed, error) {
	if err := checkRoot(doc, n.t.Name, id); err != nil {
		return nil, err
	}

	root := doc.Root()
	groups := make(map[string][]*etree.Document)
	container := newRoot(n.t.Name)

	for _, el := range root.ChildElements() {
		child, ok := n.t.ChildByElement(el.Tag)
		if !ok {
			if !n.t.HasContainer() {
				return nil, errUtils.Parse(id.String(), errors.Newf("unexpected element <%s> in %s", el.Tag, n.t.Name))
			}
			container.AddChild(el.Copy())
			continue
		}

		name := fullNameOf(el)
		if name == "" {
			return nil, errUtils.Parse(id.String(), errors.Newf("<%s> entry without fullName", el.Tag))
		}
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return nil, errUtils.Parse(id.String(), errors.Newf("invalid child name %q", name))
		}

		childRoot := el.Copy()
		childRoot.Tag = child.Name
		childRoot.Attr = nil
		childRoot.CreateAttr("xmlns", metadata.Namespace)
		groups[child.Name] = append(groups[child.Name], newDocument(childRoot))
	}

	out := &Decomposed{Children: n.orderedGroups(groups)}
	if n.t.HasContainer() {
		out.Container = newDocument(container)
	}
	return out, nil
}

func (n *nested) Compose(container *etree.Document, children []ChildGroup) (*etree.Document, error) {
	root := newRoot(n.t.Name)
	if container != nil {
		if container.Root().Tag != n.t.Name {
			return nil, errors.Newf("expected container <%s>, found <%s>", n.t.Name, container.Root().Tag)
		}
		for _, el := range container.Root().ChildElements() {
			if _, isChild := n.t.ChildByElement(el.Tag); isChild {
				return nil, errors.Newf("container of %s carries decomposed element <%s>", n.t.Name, el.Tag)
			}
			root.AddChild(el.Copy())
		}
	}

	byType := make(map[string][]*etree.Document)
	for _, g := range children {
		if g.Type == nil || g.Type.Parent != n.t {
			return nil, errors.Newf("%s: child group does not belong to this type", n.t.Name)
		}
		byType[g.Type.Name] = append(byType[g.Type.Name], g.Documents...)
	}

	for _, g := range n.orderedGroups(byType) {
		for _, doc := range g.Documents {
			el := doc.Root().Copy()
			if el.Tag != g.Type.Name {
				return nil, errors.Newf("expected <%s>, found <%s>", g.Type.Name, el.Tag)
			}
			el.Tag = g.Type.Element
			el.Attr = nil
			root.AddChild(el)
		}
	}

	return newDocument(root), nil
}

func (n *nested) Canonicalize(doc *etree.Document) (*etree.Document, error) {
	root := doc.Root()
	out := newRoot(root.Tag)
	children := make(map[string][]*etree.Element)
	for _, el := range root.ChildElements() {
		if _, ok := n.t.ChildByElement(el.Tag); ok {
			children[el.Tag] = append(children[el.Tag], el)
			continue
		}
		out.AddChild(el.Copy())
	}
	for _, c := range n.t.Children {
		els := children[c.Element]
		sort.SliceStable(els, func(i, j int) bool {
			return fullNameOf(els[i]) < fullNameOf(els[j])
		})
		for _, el := range els {
			out.AddChild(el.Copy())
		}
	}
	return newDocument(out), nil
}

// orderedGroups returns groups in declared child order, documents sorted by full name.
func (n *nested) orderedGroups(groups map[string][]*etree.Document) []ChildGroup {
	var out []ChildGroup
	for _, c := range n.t.Children {
		docs := groups[c.Name]
		if len(docs) == 0 {
			continue
		}
		sort.SliceStable(docs, func(i, j int) bool {
			return ChildName(docs[i]) < ChildName(docs[j])
		})
		out = append(out, ChildGroup{Type: c, Documents: docs})
	}
	return out
}

func (n *nested) ContainerPath(typeDir, name string) string {
	if !n.t.HasContainer() {
		return filepath.Join(typeDir, n.t.MetadataFileName(name))
	}
	return filepath.Join(typeDir, name, n.t.MetadataFileName(name))
}

func (n *nested) ContentPath(string) string { return "" }

func (n *nested) DecomposedPath(containerPath string, child *metadata.ChildType, childName string) string {
	base := filepath.Dir(containerPath)
	if n.t.HasContainer() {
		base = filepath.Join(base, child.Directory)
	}
	return filepath.Join(base, child.MetadataFileName(childName))
}

func (n *nested) DecomposedPaths(containerPath string) ([]PathGroup, error) {
	base := filepath.Dir(containerPath)

	var out []PathGroup
	for _, c := range n.t.Children {
		dir := base
		if n.t.HasContainer() {
			dir = filepath.Join(base, c.Directory)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "scan %s", dir)
		}

		suffix := "." + c.Suffix + metadata.MetaSuffix
		var paths []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
				continue
			}
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
		if len(paths) > 0 {
			sort.Strings(paths)
			out = append(out, PathGroup{Type: c, Paths: paths})
		}
	}
	return out, nil
}
