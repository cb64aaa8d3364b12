// Package strategy implements per-type decomposition of aggregate metadata documents into
// source-format files, their recomposition, and the mapping between identities and paths.
//
// Types are a closed set of variants (simple, content, nested) selected from the type
// registry; adding a type is a registry entry, not a new implementation.
package strategy

import (
	"github.com/beevik/etree"

	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

// ChildGroup holds the decomposed documents of one child type, sorted by full name.
type ChildGroup struct {
	Type      *metadata.ChildType
	Documents []*etree.Document
}

// Decomposed is the result of splitting one aggregate document.
// Container is nil for types without a container file.
type Decomposed struct {
	Container *etree.Document
	Children  []ChildGroup
}

// ChildName returns the name a decomposed child document is stored under.
func ChildName(doc *etree.Document) string {
	return fullNameOf(doc.Root())
}

// PathGroup lists existing decomposed files of one child type.
type PathGroup struct {
	Type  *metadata.ChildType
	Paths []string
}

// Strategy decomposes, composes and locates the files of one metadata type.
type Strategy interface {
	Type() *metadata.TypeDef

	// Decompose splits an aggregate document into its container and decomposed children.
	Decompose(doc *etree.Document, id metadata.Identity) (*Decomposed, error)

	// Compose is the inverse of Decompose. container may be nil for flat-children types.
	Compose(container *etree.Document, children []ChildGroup) (*etree.Document, error)

	// Canonicalize returns doc in the order Compose produces.
	Canonicalize(doc *etree.Document) (*etree.Document, error)

	// ContainerPath is the deterministic container path of name under typeDir.
	ContainerPath(typeDir, name string) string

	// ContentPath returns the content file that accompanies containerPath, or "".
	ContentPath(containerPath string) string

	// DecomposedPath is the deterministic path of a decomposed child document.
	DecomposedPath(containerPath string, child *metadata.ChildType, childName string) string

	// DecomposedPaths scans the workspace for existing decomposed files of the component.
	DecomposedPaths(containerPath string) ([]PathGroup, error)
}

// For returns the strategy variant for t.
func For(t *metadata.TypeDef) Strategy {
	switch t.Strategy {
	case metadata.StrategyNested:
		return &nested{t: t}
	case metadata.StrategyContent:
		return &content{simple{t: t}}
	default:
		return &simple{t: t}
	}
}
