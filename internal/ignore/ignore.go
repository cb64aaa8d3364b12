// Package ignore implements the project-level ignore predicate loaded from .syncignore.
package ignore

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
)

// FileName is the ignore file looked up at the project root.
const FileName = ".syncignore"

// Predicate decides whether a path takes part in synchronization.
type Predicate interface {
	Accepts(path string) bool
}

type rule struct {
	pattern string
	negate  bool
	dirOnly bool
}

// Matcher evaluates gitignore-style rules with doublestar globs. The last matching rule wins.
type Matcher struct {
	root  string
	rules []rule
}

// defaults are always applied before the project's own rules.
var defaults = []string{
	"**/.git/",
	"**/.DS_Store",
	"**/*.dup",
	"**/" + FileName,
}

// Load reads <root>/.syncignore. A missing file yields the default rules only. Extra rules
// apply after the defaults and before the file's own rules.
func Load(root string, extra ...string) (*Matcher, error) {
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "read %s", FileName)
	}
	return Parse(root, data, extra...)
}

// Parse builds a matcher from ignore file contents.
func Parse(root string, data []byte, extra ...string) (*Matcher, error) {
	m := &Matcher{root: root}
	for _, line := range append(append([]string(nil), defaults...), extra...) {
		if line == "" {
			continue
		}
		if err := m.add(line); err != nil {
			return nil, err
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := m.add(line); err != nil {
			return nil, errors.Wrapf(err, "%s:%d", FileName, lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", FileName)
	}
	return m, nil
}

// DirRule returns an anchored rule ignoring dir, which is absolute or relative to root.
// It returns "" when dir lies outside root.
func DirRule(root, dir string) string {
	rel := dir
	if filepath.IsAbs(dir) {
		r, err := filepath.Rel(root, dir)
		if err != nil {
			return ""
		}
		rel = r
	}
	rel = filepath.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return "/" + filepath.ToSlash(rel) + "/"
}

func (m *Matcher) add(line string) error {
	r := rule{}
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	switch {
	case strings.HasPrefix(line, "/"):
		line = strings.TrimPrefix(line, "/")
	case !strings.Contains(line, "/"):
		line = "**/" + line
	}

	if !doublestar.ValidatePattern(line) {
		return errors.Newf("invalid pattern %q", line)
	}
	r.pattern = line
	m.rules = append(m.rules, r)
	return nil
}

// Accepts reports whether path (absolute, or relative to the project root) is tracked.
func (m *Matcher) Accepts(path string) bool {
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(m.root, path)
		if err != nil {
			return true
		}
		rel = r
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return true
	}

	ignored := false
	for _, r := range m.rules {
		if m.matches(r, rel) {
			ignored = !r.negate
		}
	}
	return !ignored
}

// matches checks rel and, for directory rules, every parent directory of rel.
func (m *Matcher) matches(r rule, rel string) bool {
	if !r.dirOnly {
		if ok, _ := doublestar.Match(r.pattern, rel); ok {
			return true
		}
	}

	parts := strings.Split(rel, "/")
	limit := len(parts) - 1
	if r.dirOnly {
		limit = len(parts)
	}
	for i := 1; i <= limit; i++ {
		if ok, _ := doublestar.Match(r.pattern, strings.Join(parts[:i], "/")); ok {
			return true
		}
	}
	return false
}

// AcceptAll is a predicate that tracks everything.
type AcceptAll struct{}

func (AcceptAll) Accepts(string) bool { return true }
