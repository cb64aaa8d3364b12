package strategy

import (
	"path/filepath"
	"strings"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

// Role is the part a file plays in its aggregate component.
type Role int

const (
	RoleContainer Role = iota
	RoleChild
	RoleContent
)

// Location is the result of mapping a workspace path back to its component.
type Location struct {
	Type          *metadata.TypeDef
	Child         *metadata.ChildType
	Role          Role
	AggregateName string
	// Identity of the file itself: the child identity for decomposed files.
	Identity      metadata.Identity
	ContainerPath string
}

// Aggregate is the identity of the owning aggregate component.
func (l Location) Aggregate() metadata.Identity {
	return metadata.Identity{Type: l.Type.Name, FullName: l.AggregateName}
}

// Locate maps a workspace file to its component. It returns ErrUnknownType for files that are
// not metadata of a registered type.
func Locate(reg *metadata.Registry, path string) (Location, error) {
	base := filepath.Base(path)
	dir := filepath.Dir(path)
	name, suffix, meta := metadata.SplitFileName(base)
	if suffix == "" {
		return Location{}, unknown(path)
	}

	if !meta {
		t, ok := reg.BySuffix(suffix)
		if !ok || !t.HasContent() {
			return Location{}, unknown(path)
		}
		return Location{
			Type:          t,
			Role:          RoleContent,
			AggregateName: name,
			Identity:      metadata.Identity{Type: t.Name, FullName: name},
			ContainerPath: path + metadata.MetaSuffix,
		}, nil
	}

	if child, ok := reg.ChildBySuffix(suffix); ok {
		return locateChild(child, path, dir, name)
	}

	t, ok := reg.BySuffix(suffix)
	if !ok {
		return Location{}, unknown(path)
	}
	if t.Composable() && t.HasContainer() && filepath.Base(dir) != name {
		return Location{}, errUtils.Build(errUtils.ErrInvalidPath).
			WithExplanationf("%s container must live in a directory named %s", t.Name, name).
			WithContext("path", path).
			Err()
	}
	return Location{
		Type:          t,
		Role:          RoleContainer,
		AggregateName: name,
		Identity:      metadata.Identity{Type: t.Name, FullName: name},
		ContainerPath: path,
	}, nil
}

func locateChild(child *metadata.ChildType, path, dir, name string) (Location, error) {
	parent := child.Parent
	s := For(parent)

	if !parent.HasContainer() {
		aggName := parent.Name
		return Location{
			Type:          parent,
			Child:         child,
			Role:          RoleChild,
			AggregateName: aggName,
			Identity:      metadata.Identity{Type: child.Name, FullName: aggName + "." + name},
			ContainerPath: s.ContainerPath(dir, aggName),
		}, nil
	}

	if filepath.Base(dir) != child.Directory {
		return Location{}, errUtils.Build(errUtils.ErrInvalidPath).
			WithExplanationf("%s files must live in a %q directory", child.Name, child.Directory).
			WithContext("path", path).
			Err()
	}
	componentDir := filepath.Dir(dir)
	aggName := filepath.Base(componentDir)
	return Location{
		Type:          parent,
		Child:         child,
		Role:          RoleChild,
		AggregateName: aggName,
		Identity:      metadata.Identity{Type: child.Name, FullName: aggName + "." + name},
		ContainerPath: s.ContainerPath(filepath.Dir(componentDir), aggName),
	}, nil
}

// TypeDir returns the type directory that holds containerPath.
func TypeDir(t *metadata.TypeDef, containerPath string) string {
	dir := filepath.Dir(containerPath)
	if t.Composable() && t.HasContainer() {
		dir = filepath.Dir(dir)
	}
	return dir
}

// Within reports whether path is root or lies below it.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func unknown(path string) error {
	return errUtils.Build(errUtils.ErrUnknownType).WithContext("path", path).Err()
}
