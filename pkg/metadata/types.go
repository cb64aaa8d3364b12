package metadata

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Namespace is the XML namespace of every metadata document.
const Namespace = "http://soap.sforce.com/2006/04/metadata"

// MetaSuffix is appended to source-format metadata file names.
const MetaSuffix = "-meta.xml"

// Identity is the durable primary key of a component across aggregate and source formats.
type Identity struct {
	Type     string `json:"type"`
	FullName string `json:"fullName"`
}

func (i Identity) String() string {
	return i.Type + ":" + i.FullName
}

// ParseIdentity is the inverse of Identity.String.
func ParseIdentity(s string) (Identity, error) {
	typ, name, ok := strings.Cut(s, ":")
	if !ok || typ == "" || name == "" {
		return Identity{}, errors.Newf("invalid identity %q", s)
	}
	return Identity{Type: typ, FullName: name}, nil
}

// ParentName returns the aggregate name of a decomposed child identity ("Obj.Field" -> "Obj").
func ParentName(fullName string) string {
	if i := strings.Index(fullName, "."); i >= 0 {
		return fullName[:i]
	}
	return fullName
}

// ChildName returns the local part of a decomposed child identity ("Obj.Field" -> "Field").
func ChildName(fullName string) string {
	if i := strings.Index(fullName, "."); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}

// Key identifies one AggregateSourceElement inside a package.
type Key struct {
	Package  string
	Type     string
	FullName string
}

func (k Key) Identity() Identity {
	return Identity{Type: k.Type, FullName: k.FullName}
}

// State is the lifecycle state of a workspace file within one synchronization pass.
type State string

const (
	StateUnchanged State = "Unchanged"
	StateChanged   State = "Changed"
	StateDeleted   State = "Deleted"
	StateNew       State = "New"
	StateDuplicate State = "Duplicate"
)

// IsChanged reports whether the state represents a pending local change.
func (s State) IsChanged() bool {
	return s == StateChanged || s == StateNew || s == StateDeleted
}
