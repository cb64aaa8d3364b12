package element

import (
	"sort"

	"github.com/samber/lo"

	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

// Collection indexes aggregate elements by package, then by (type, fullName).
// Packages iterate in declared order; packages unknown at construction follow in insertion order.
type Collection struct {
	order []string
	byPkg map[string]map[metadata.Key]*AggregateSourceElement
}

// NewCollection creates an empty collection whose iteration follows packages.
func NewCollection(packages []string) *Collection {
	return &Collection{
		order: append([]string(nil), packages...),
		byPkg: make(map[string]map[metadata.Key]*AggregateSourceElement),
	}
}

// Add inserts a, replacing any element with the same key.
func (c *Collection) Add(a *AggregateSourceElement) {
	pkg := a.Package()
	m, ok := c.byPkg[pkg]
	if !ok {
		m = make(map[metadata.Key]*AggregateSourceElement)
		c.byPkg[pkg] = m
		if !lo.Contains(c.order, pkg) {
			c.order = append(c.order, pkg)
		}
	}
	m[a.Key()] = a
}

// Get returns the element with identity id in pkg.
func (c *Collection) Get(pkg string, id metadata.Identity) (*AggregateSourceElement, bool) {
	a, ok := c.byPkg[pkg][metadata.Key{Package: pkg, Type: id.Type, FullName: id.FullName}]
	return a, ok
}

// Find returns every element with identity id across packages, in package order.
func (c *Collection) Find(id metadata.Identity) []*AggregateSourceElement {
	var out []*AggregateSourceElement
	for _, pkg := range c.order {
		if a, ok := c.Get(pkg, id); ok {
			out = append(out, a)
		}
	}
	return out
}

// Remove deletes the element with key k.
func (c *Collection) Remove(k metadata.Key) {
	delete(c.byPkg[k.Package], k)
}

// Packages returns the packages holding at least one element, in order.
func (c *Collection) Packages() []string {
	return lo.Filter(c.order, func(pkg string, _ int) bool {
		return len(c.byPkg[pkg]) > 0
	})
}

// InPackage returns the elements of pkg sorted by type and name.
func (c *Collection) InPackage(pkg string) []*AggregateSourceElement {
	m := c.byPkg[pkg]
	keys := lo.Keys(m)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].FullName < keys[j].FullName
	})
	return lo.Map(keys, func(k metadata.Key, _ int) *AggregateSourceElement { return m[k] })
}

// All returns every element in package order.
func (c *Collection) All() []*AggregateSourceElement {
	var out []*AggregateSourceElement
	for _, pkg := range c.order {
		out = append(out, c.InPackage(pkg)...)
	}
	return out
}

// Len is the number of elements across packages.
func (c *Collection) Len() int {
	return lo.SumBy(lo.Values(c.byPkg), func(m map[metadata.Key]*AggregateSourceElement) int { return len(m) })
}

// Merge adds every element of other. Elements with the same key are replaced by other's;
// packages present only in c are left untouched.
func (c *Collection) Merge(other *Collection) {
	if other == nil {
		return
	}
	for _, a := range other.All() {
		c.Add(a)
	}
}

// WorkspaceElements flattens the workspace elements of every aggregate, in package order.
func (c *Collection) WorkspaceElements() []*WorkspaceElement {
	return lo.FlatMap(c.All(), func(a *AggregateSourceElement, _ int) []*WorkspaceElement {
		return a.WorkspaceElements()
	})
}
