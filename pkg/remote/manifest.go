package remote

import (
	"bytes"
	"sort"

	"github.com/beevik/etree"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

const (
	ManifestFileName    = "package.xml"
	DestructiveFileName = "destructiveChanges.xml"
)

// Manifest lists components by type, as in package.xml.
type Manifest struct {
	Version string
	members map[string]map[string]bool
}

// NewManifest creates an empty manifest for an API version.
func NewManifest(version string) *Manifest {
	return &Manifest{Version: version, members: make(map[string]map[string]bool)}
}

// ManifestOf builds a manifest holding ids.
func ManifestOf(version string, ids ...metadata.Identity) *Manifest {
	m := NewManifest(version)
	for _, id := range ids {
		m.Add(id)
	}
	return m
}

// Add records id.
func (m *Manifest) Add(id metadata.Identity) {
	set, ok := m.members[id.Type]
	if !ok {
		set = make(map[string]bool)
		m.members[id.Type] = set
	}
	set[id.FullName] = true
}

// Contains reports whether id was requested.
func (m *Manifest) Contains(id metadata.Identity) bool {
	if m == nil {
		return false
	}
	return m.members[id.Type][id.FullName]
}

// Types returns the listed type names, sorted.
func (m *Manifest) Types() []string {
	if m == nil {
		return nil
	}
	types := lo.Keys(m.members)
	sort.Strings(types)
	return types
}

// Members returns the sorted member names of typ.
func (m *Manifest) Members(typ string) []string {
	names := lo.Keys(m.members[typ])
	sort.Strings(names)
	return names
}

// Identities returns every listed identity, sorted by type then name.
func (m *Manifest) Identities() []metadata.Identity {
	var out []metadata.Identity
	for _, t := range m.Types() {
		for _, n := range m.Members(t) {
			out = append(out, metadata.Identity{Type: t, FullName: n})
		}
	}
	return out
}

// Len is the number of listed members.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return lo.SumBy(lo.Values(m.members), func(s map[string]bool) int { return len(s) })
}

// Empty reports whether no member is listed.
func (m *Manifest) Empty() bool {
	return m.Len() == 0
}

// XML renders the manifest as a package.xml document.
func (m *Manifest) XML() ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("Package")
	root.CreateAttr("xmlns", metadata.Namespace)

	for _, t := range m.Types() {
		types := root.CreateElement("types")
		for _, n := range m.Members(t) {
			types.CreateElement("members").SetText(n)
		}
		types.CreateElement("name").SetText(t)
	}
	if m.Version != "" {
		root.CreateElement("version").SetText(m.Version)
	}

	doc.Indent(4)
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "render manifest")
	}
	return buf.Bytes(), nil
}

// ParseManifest reads a package.xml document.
func ParseManifest(data []byte) (*Manifest, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errUtils.Parse(ManifestFileName, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Package" {
		return nil, errUtils.Parse(ManifestFileName, errors.New("expected <Package> root"))
	}

	m := NewManifest("")
	if v := root.SelectElement("version"); v != nil {
		m.Version = v.Text()
	}
	for _, types := range root.SelectElements("types") {
		name := types.SelectElement("name")
		if name == nil || name.Text() == "" {
			return nil, errUtils.Parse(ManifestFileName, errors.New("<types> without <name>"))
		}
		for _, member := range types.SelectElements("members") {
			m.Add(metadata.Identity{Type: name.Text(), FullName: member.Text()})
		}
	}
	return m, nil
}
