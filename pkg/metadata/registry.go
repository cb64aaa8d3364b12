package metadata

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
)

//go:embed types.yaml
var builtinTypes []byte

// StrategyKind selects the decomposition variant of a type.
type StrategyKind string

const (
	StrategySimple  StrategyKind = "simple"
	StrategyContent StrategyKind = "content"
	StrategyNested  StrategyKind = "nested"
)

// ChildType is a subtype extracted from a nested aggregate into its own files.
type ChildType struct {
	Name      string `yaml:"name"`
	Directory string `yaml:"directory"`
	Suffix    string `yaml:"suffix"`
	Element   string `yaml:"element"`

	Parent *TypeDef `yaml:"-"`
}

// TypeDef describes one top-level metadata type.
type TypeDef struct {
	Name            string       `yaml:"name"`
	Directory       string       `yaml:"directory"`
	Suffix          string       `yaml:"suffix"`
	Strategy        StrategyKind `yaml:"strategy"`
	DeleteSupported bool         `yaml:"deleteSupported"`
	FlatChildren    bool         `yaml:"flatChildren"`
	Children        []*ChildType `yaml:"children"`
}

// Composable reports whether the type splits into a container plus decomposed children.
func (t *TypeDef) Composable() bool {
	return t.Strategy == StrategyNested
}

// HasContent reports whether the type carries a content file next to its metadata file.
func (t *TypeDef) HasContent() bool {
	return t.Strategy == StrategyContent
}

// HasContainer reports whether a nested type has a container file in source format.
func (t *TypeDef) HasContainer() bool {
	return !t.FlatChildren
}

// Child returns the child type with the given name.
func (t *TypeDef) Child(name string) (*ChildType, bool) {
	for _, c := range t.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ChildByElement returns the child type extracted from the given XML element name.
func (t *TypeDef) ChildByElement(element string) (*ChildType, bool) {
	for _, c := range t.Children {
		if c.Element == element {
			return c, true
		}
	}
	return nil, false
}

// MetadataFileName is the source-format metadata file name for name.
func (t *TypeDef) MetadataFileName(name string) string {
	return name + "." + t.Suffix + MetaSuffix
}

// ContentFileName is the content file name for name.
func (t *TypeDef) ContentFileName(name string) string {
	return name + "." + t.Suffix
}

// AggregatePath is the deploy/retrieve tree path of the aggregate metadata document.
func (t *TypeDef) AggregatePath(name string) string {
	if t.HasContent() {
		return filepath.ToSlash(filepath.Join(t.Directory, t.MetadataFileName(name)))
	}
	return filepath.ToSlash(filepath.Join(t.Directory, name+"."+t.Suffix))
}

// AggregateContentPath is the deploy/retrieve tree path of the content file.
func (t *TypeDef) AggregateContentPath(name string) string {
	return filepath.ToSlash(filepath.Join(t.Directory, t.ContentFileName(name)))
}

// MetadataFileName is the source-format file name of a decomposed child.
func (c *ChildType) MetadataFileName(name string) string {
	return name + "." + c.Suffix + MetaSuffix
}

// Registry indexes type definitions by name and file suffix.
type Registry struct {
	types    []*TypeDef
	byName   map[string]*TypeDef
	children map[string]*ChildType
	bySuffix map[string]*TypeDef
	childSfx map[string]*ChildType
}

type registryFile struct {
	Types []*TypeDef `yaml:"types"`
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the shared registry of built-in types.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		r, err := LoadRegistry(builtinTypes)
		if err != nil {
			panic(fmt.Sprintf("invalid built-in type registry: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// LoadRegistry parses a YAML type table.
func LoadRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "decode type registry")
	}

	r := &Registry{
		byName:   make(map[string]*TypeDef),
		children: make(map[string]*ChildType),
		bySuffix: make(map[string]*TypeDef),
		childSfx: make(map[string]*ChildType),
	}

	for _, t := range file.Types {
		if t.Name == "" || t.Suffix == "" || t.Directory == "" {
			return nil, errors.Newf("type %q: name, directory and suffix are required", t.Name)
		}
		switch t.Strategy {
		case StrategySimple, StrategyContent, StrategyNested:
		default:
			return nil, errors.Newf("type %q: unknown strategy %q", t.Name, t.Strategy)
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, errors.Newf("type %q declared twice", t.Name)
		}
		if _, dup := r.bySuffix[t.Suffix]; dup {
			return nil, errors.Newf("suffix %q declared twice", t.Suffix)
		}
		r.types = append(r.types, t)
		r.byName[t.Name] = t
		r.bySuffix[t.Suffix] = t

		for _, c := range t.Children {
			if c.Name == "" || c.Suffix == "" || c.Element == "" {
				return nil, errors.Newf("type %q: child name, suffix and element are required", t.Name)
			}
			if !t.FlatChildren && c.Directory == "" {
				return nil, errors.Newf("type %q: child %q needs a directory", t.Name, c.Name)
			}
			c.Parent = t
			r.children[c.Name] = c
			r.childSfx[c.Suffix] = c
		}
	}

	return r, nil
}

// Types returns all top-level types in declaration order.
func (r *Registry) Types() []*TypeDef {
	return r.types
}

// Type looks up a top-level type by name.
func (r *Registry) Type(name string) (*TypeDef, error) {
	if t, ok := r.byName[name]; ok {
		return t, nil
	}
	return nil, errUtils.Build(errUtils.ErrUnknownType).WithContext("type", name).Err()
}

// ChildType looks up a decomposed child type by name.
func (r *Registry) ChildType(name string) (*ChildType, bool) {
	c, ok := r.children[name]
	return c, ok
}

// Resolve maps any type name, top-level or child, to its top-level type and optional child.
func (r *Registry) Resolve(name string) (*TypeDef, *ChildType, error) {
	if t, ok := r.byName[name]; ok {
		return t, nil, nil
	}
	if c, ok := r.children[name]; ok {
		return c.Parent, c, nil
	}
	return nil, nil, errUtils.Build(errUtils.ErrUnknownType).WithContext("type", name).Err()
}

// AggregateIdentity maps a (possibly child) identity to its aggregate identity.
func (r *Registry) AggregateIdentity(id Identity) (Identity, error) {
	t, child, err := r.Resolve(id.Type)
	if err != nil {
		return Identity{}, err
	}
	if child == nil {
		return id, nil
	}
	return Identity{Type: t.Name, FullName: ParentName(id.FullName)}, nil
}

// BySuffix finds the top-level type whose metadata or content files use suffix.
func (r *Registry) BySuffix(suffix string) (*TypeDef, bool) {
	t, ok := r.bySuffix[suffix]
	return t, ok
}

// ChildBySuffix finds the decomposed child type whose files use suffix.
func (r *Registry) ChildBySuffix(suffix string) (*ChildType, bool) {
	c, ok := r.childSfx[suffix]
	return c, ok
}

// SplitFileName splits a source file name into the component name, suffix and whether it is
// a metadata ("-meta.xml") file.
func SplitFileName(base string) (name, suffix string, meta bool) {
	if strings.HasSuffix(base, MetaSuffix) {
		base = strings.TrimSuffix(base, MetaSuffix)
		meta = true
	}
	i := strings.LastIndex(base, ".")
	if i <= 0 {
		return base, "", meta
	}
	return base[:i], base[i+1:], meta
}
