package tracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/internal/atomicfile"
	"github.com/yuya-takeyama/srcsync/internal/ignore"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

type fixture struct {
	root  string
	state string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{root: root, state: filepath.Join(root, ".srcsync", "remotes", "r1")}
	f.write(t, "app/classes/A.cls", "class A {}")
	f.write(t, "app/classes/A.cls-meta.xml", "<ApexClass/>")
	f.write(t, "app/objects/Account/fields/F1.field-meta.xml", "<CustomField/>")
	return f
}

func (f *fixture) path(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

func (f *fixture) write(t *testing.T, rel, body string) {
	t.Helper()
	p := f.path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func (f *fixture) open(t *testing.T, stateless bool) *Tracker {
	t.Helper()
	m, err := ignore.Parse(f.root, nil)
	require.NoError(t, err)
	tr, err := New(Options{
		Root:      f.root,
		Packages:  []string{"app", "missing"},
		StateDir:  f.state,
		Ignore:    m,
		Stateless: stateless,
	})
	require.NoError(t, err)
	return tr
}

func (f *fixture) acceptAll(t *testing.T, tr *Tracker) {
	t.Helper()
	var paths []string
	for _, info := range tr.Infos() {
		paths = append(paths, info.Path)
	}
	tr.Accept(paths...)
	require.NoError(t, tr.Save())
}

func states(tr *Tracker) map[string]metadata.State {
	out := make(map[string]metadata.State)
	for _, info := range tr.Infos() {
		if !info.IsDirectory {
			out[info.Path] = info.State
		}
	}
	return out
}

func TestFirstRunPersistsEverythingAsNew(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t, false)

	assert.FileExists(t, tr.BaselinePath())
	for path, st := range states(tr) {
		assert.Equal(t, metadata.StateNew, st, path)
	}

	// Still New on the next run until accepted.
	again := f.open(t, false)
	assert.Equal(t, metadata.StateNew, states(again)[f.path("app/classes/A.cls")])
	assert.False(t, again.Synced(f.path("app/classes/A.cls")))
}

func TestClassification(t *testing.T) {
	f := newFixture(t)
	f.acceptAll(t, f.open(t, false))

	clean := f.open(t, false)
	assert.Empty(t, clean.Changed())
	assert.True(t, clean.Synced(f.path("app/classes/A.cls")))

	f.write(t, "app/classes/A.cls", "class A { void x() {} }")
	require.NoError(t, os.Remove(f.path("app/objects/Account/fields/F1.field-meta.xml")))
	f.write(t, "app/classes/B.cls", "class B {}")

	tr := f.open(t, false)
	got := states(tr)
	assert.Equal(t, metadata.StateChanged, got[f.path("app/classes/A.cls")])
	assert.Equal(t, metadata.StateUnchanged, got[f.path("app/classes/A.cls-meta.xml")])
	assert.Equal(t, metadata.StateDeleted, got[f.path("app/objects/Account/fields/F1.field-meta.xml")])
	assert.Equal(t, metadata.StateNew, got[f.path("app/classes/B.cls")])

	dir, ok := tr.Get(f.path("app/classes"))
	require.True(t, ok)
	assert.True(t, dir.IsDirectory)
	assert.Equal(t, metadata.StateChanged, dir.State, "a new entry changes the directory listing")

	pkg, ok := tr.Get(f.path("app"))
	require.True(t, ok)
	assert.True(t, pkg.IsPackage)
	assert.Equal(t, "app", pkg.Package)
}

func TestIdempotentClassification(t *testing.T) {
	f := newFixture(t)
	f.acceptAll(t, f.open(t, false))
	f.write(t, "app/classes/A.cls", "changed")

	first := states(f.open(t, false))
	second := states(f.open(t, false))
	assert.Equal(t, first, second)
}

func TestBackupAndRevert(t *testing.T) {
	f := newFixture(t)
	f.acceptAll(t, f.open(t, false))
	f.write(t, "app/classes/A.cls", "changed")

	tr := f.open(t, false)
	require.NoError(t, tr.Backup())
	assert.FileExists(t, tr.BaselinePath()+BackupSuffix)

	tr.Accept(f.path("app/classes/A.cls"))
	require.NoError(t, tr.Save())
	assert.Equal(t, metadata.StateUnchanged, states(f.open(t, false))[f.path("app/classes/A.cls")])

	require.NoError(t, tr.Revert())
	assert.Equal(t, metadata.StateChanged, states(tr)[f.path("app/classes/A.cls")])
	assert.NoFileExists(t, tr.BaselinePath()+BackupSuffix)
	assert.Equal(t, metadata.StateChanged, states(f.open(t, false))[f.path("app/classes/A.cls")])
}

func TestRefreshAndAcceptDeletion(t *testing.T) {
	f := newFixture(t)
	f.acceptAll(t, f.open(t, false))
	tr := f.open(t, false)

	field := f.path("app/objects/Account/fields/F1.field-meta.xml")
	require.NoError(t, os.Remove(field))
	f.write(t, "app/objects/Account/fields/F2.field-meta.xml", "<CustomField/>")
	require.NoError(t, tr.Refresh(field, f.path("app/objects/Account/fields/F2.field-meta.xml")))

	info, ok := tr.Get(field)
	require.True(t, ok)
	assert.Equal(t, metadata.StateDeleted, info.State)

	tr.Accept(field, f.path("app/objects/Account/fields/F2.field-meta.xml"))
	require.NoError(t, tr.Save())

	_, ok = tr.Get(field)
	assert.False(t, ok)
	assert.Empty(t, f.open(t, false).Changed())
}

func baselinePaths(t *testing.T, tr *Tracker) []string {
	t.Helper()
	var file baselineFile
	found, err := atomicfile.ReadJSON(tr.BaselinePath(), &file)
	require.NoError(t, err)
	require.True(t, found)
	var out []string
	for _, e := range file.Entries {
		out = append(out, e.Path)
	}
	return out
}

func TestRemovedNewPathsLeaveTheBaseline(t *testing.T) {
	f := newFixture(t)
	first := f.open(t, false)
	assert.Contains(t, baselinePaths(t, first), f.path("app/classes/A.cls"))

	require.NoError(t, os.Remove(f.path("app/classes/A.cls")))
	tr := f.open(t, false)
	require.NoError(t, tr.Save())
	assert.NotContains(t, baselinePaths(t, tr), f.path("app/classes/A.cls"))
	_, ok := tr.Get(f.path("app/classes/A.cls"))
	assert.False(t, ok)

	// The same holds for a path removed while the tracker is open.
	require.NoError(t, os.Remove(f.path("app/classes/A.cls-meta.xml")))
	require.NoError(t, tr.Refresh(f.path("app/classes/A.cls-meta.xml")))
	require.NoError(t, tr.Save())
	assert.NotContains(t, baselinePaths(t, tr), f.path("app/classes/A.cls-meta.xml"))
}

func TestUnacceptedChangesSurviveSave(t *testing.T) {
	f := newFixture(t)
	f.acceptAll(t, f.open(t, false))
	f.write(t, "app/classes/A.cls", "changed")
	f.write(t, "app/classes/A.cls-meta.xml", "<ApexClass>changed</ApexClass>")

	tr := f.open(t, false)
	tr.Accept(f.path("app/classes/A.cls"))
	require.NoError(t, tr.Save())

	got := states(f.open(t, false))
	assert.Equal(t, metadata.StateUnchanged, got[f.path("app/classes/A.cls")])
	assert.Equal(t, metadata.StateChanged, got[f.path("app/classes/A.cls-meta.xml")])
}

func TestStatelessWritesNothing(t *testing.T) {
	f := newFixture(t)
	tr := f.open(t, true)

	assert.True(t, tr.Stateless())
	assert.NoFileExists(t, tr.BaselinePath())
	for _, st := range states(tr) {
		assert.Equal(t, metadata.StateNew, st)
	}
	require.NoError(t, tr.Backup())
	require.NoError(t, tr.Save())
	assert.NoFileExists(t, tr.BaselinePath())
}

func TestIgnoredPathsAreNotTracked(t *testing.T) {
	f := newFixture(t)
	f.write(t, "app/classes/A.cls.dup", "dup")
	tr := f.open(t, false)
	_, ok := tr.Get(f.path("app/classes/A.cls.dup"))
	assert.False(t, ok)
}

func TestCorruptBaseline(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.state, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.state, BaselineFileName), []byte("{not json"), 0o644))

	_, err := New(Options{Root: f.root, Packages: []string{"app"}, StateDir: f.state})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUtils.ErrBaseline))
}
