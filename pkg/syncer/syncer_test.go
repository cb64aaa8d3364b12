package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/yuya-takeyama/srcsync/internal/ignore"
	"github.com/yuya-takeyama/srcsync/pkg/events"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/project"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
	"github.com/yuya-takeyama/srcsync/pkg/tracker"
	"github.com/yuya-takeyama/srcsync/pkg/workspace"
)

const (
	objDir    = "app/main/default/objects/ObjA"
	container = objDir + "/ObjA.object-meta.xml"
	fieldF1   = objDir + "/fields/F1__c.field-meta.xml"
	fieldF2   = objDir + "/fields/F2__c.field-meta.xml"
	classB    = "lib/main/default/classes/B.cls"
	classBXML = "lib/main/default/classes/B.cls-meta.xml"
	classC    = "app/main/default/classes/C.cls"
	classCXML = "app/main/default/classes/C.cls-meta.xml"

	classD       = "app/main/default/classes/D.cls"
	classDXML    = "app/main/default/classes/D.cls-meta.xml"
	libClassD    = "lib/main/default/classes/D.cls"
	libClassDXML = "lib/main/default/classes/D.cls-meta.xml"

	ns = `xmlns="http://soap.sforce.com/2006/04/metadata"`
)

var (
	objA = metadata.Identity{Type: "CustomObject", FullName: "ObjA"}
	f1   = metadata.Identity{Type: "CustomField", FullName: "ObjA.F1__c"}
	f2   = metadata.Identity{Type: "CustomField", FullName: "ObjA.F2__c"}
)

type fixture struct {
	root       string
	project    *project.Project
	ignore     *ignore.Matcher
	watermarks *remote.FileWatermarkStore
	remote     *remote.MockRemote
	bus        *events.Bus
}

// newFixture creates a synchronized workspace with packages app (default) and lib.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	proj, err := project.New(root, project.Config{PackageDirectories: []project.PackageDirectory{
		{Path: "app", Default: true},
		{Path: "lib"},
	}})
	require.NoError(t, err)
	m, err := ignore.Parse(root, nil)
	require.NoError(t, err)

	f := &fixture{
		root:       root,
		project:    proj,
		ignore:     m,
		watermarks: remote.NewFileWatermarkStore(proj.StatePath("org")),
		remote:     remote.NewMockRemote(gomock.NewController(t)),
		bus:        events.NewBus(nil),
	}
	f.write(t, container, `<CustomObject `+ns+`><label>A</label></CustomObject>`)
	f.write(t, fieldF1, `<CustomField `+ns+`><fullName>F1__c</fullName></CustomField>`)
	f.write(t, classB, "public class B {}")
	f.write(t, classBXML, `<ApexClass `+ns+`><apiVersion>60.0</apiVersion></ApexClass>`)
	f.accept(t)
	return f
}

// accept records the whole workspace as synchronized.
func (f *fixture) accept(t *testing.T) {
	t.Helper()
	tr := f.tracker(t)
	var all []string
	for _, info := range tr.Infos() {
		all = append(all, info.Path)
	}
	tr.Accept(all...)
	require.NoError(t, tr.Save())
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

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(f.path(rel)))
}

func (f *fixture) tracker(t *testing.T) *tracker.Tracker {
	t.Helper()
	tr, err := tracker.New(tracker.Options{
		Root:     f.root,
		Packages: f.project.Packages(),
		StateDir: f.project.StatePath("org"),
		Ignore:   f.ignore,
	})
	require.NoError(t, err)
	return tr
}

// pendingPaths lists the files a fresh tracker still reports as changed.
func (f *fixture) pendingPaths(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, info := range f.tracker(t).Changed() {
		if !info.IsDirectory {
			out = append(out, info.Path)
		}
	}
	return out
}

func (f *fixture) syncer(t *testing.T) *Syncer {
	t.Helper()
	a, err := workspace.New(workspace.Options{Project: f.project, Tracker: f.tracker(t)})
	require.NoError(t, err)
	return New(Options{
		Adapter:    a,
		Remote:     f.remote,
		Watermarks: f.watermarks,
		Ignore:     f.ignore,
		Events:     f.bus,
	})
}

func (f *fixture) outstanding(changes ...remote.ChangeElement) {
	f.remote.EXPECT().RetrieveOutstandingChanges(gomock.Any(), gomock.Any()).Return(changes, nil).AnyTimes()
}

func (f *fixture) watermark(t *testing.T) *remote.Watermark {
	t.Helper()
	w, err := f.watermarks.Load()
	require.NoError(t, err)
	return w
}

// deployed is one captured deploy request.
type deployed struct {
	files       map[string][]byte
	manifest    *remote.Manifest
	destructive *remote.Manifest
}

func readDeploy(t *testing.T, zip []byte) deployed {
	t.Helper()
	files, err := remote.ReadZip(zip)
	require.NoError(t, err)
	d := deployed{files: files}
	d.manifest, err = remote.ParseManifest(files[remote.ManifestFileName])
	require.NoError(t, err)
	if data, ok := files[remote.DestructiveFileName]; ok {
		d.destructive, err = remote.ParseManifest(data)
		require.NoError(t, err)
	}
	return d
}

// succeedAll builds a deploy result accepting every submitted component.
func succeedAll(d deployed) *remote.DeployResult {
	res := &remote.DeployResult{ID: "job"}
	for _, id := range d.manifest.Identities() {
		res.Components = append(res.Components, remote.ComponentResult{Type: id.Type, FullName: id.FullName, Success: true})
	}
	for _, id := range d.destructive.Identities() {
		res.Components = append(res.Components, remote.ComponentResult{Type: id.Type, FullName: id.FullName, Success: true, Deleted: true})
	}
	res.Recompute()
	return res
}

func completed[T any](id string, result T) remote.Job[T] {
	return &remote.Completed[T]{JobID: id, Result: result}
}

// revisions answers LatestRevisions from a fixed table.
func revisions(table map[metadata.Identity]int64) func(context.Context, []metadata.Identity) ([]remote.ChangeElement, error) {
	return func(_ context.Context, ids []metadata.Identity) ([]remote.ChangeElement, error) {
		var out []remote.ChangeElement
		for _, id := range ids {
			if rev, ok := table[id]; ok {
				out = append(out, remote.ChangeElement{Type: id.Type, FullName: id.FullName, Revision: rev})
			}
		}
		return out, nil
	}
}

// changeLog stands in for the remote revision log.
type changeLog struct {
	counter int64
	changes []remote.ChangeElement
}

func (l *changeLog) record(ids ...metadata.Identity) {
	for _, id := range ids {
		l.counter++
		l.changes = append(l.changes, remote.ChangeElement{Type: id.Type, FullName: id.FullName, Revision: l.counter})
	}
}

func (l *changeLog) since(_ context.Context, watermark int64) ([]remote.ChangeElement, error) {
	var out []remote.ChangeElement
	for _, c := range l.changes {
		if c.Revision > watermark {
			out = append(out, c)
		}
	}
	return out, nil
}

func (l *changeLog) latest(_ context.Context, ids []metadata.Identity) ([]remote.ChangeElement, error) {
	newest := make(map[metadata.Identity]remote.ChangeElement)
	for _, c := range l.changes {
		newest[c.Identity()] = c
	}
	var out []remote.ChangeElement
	for _, id := range ids {
		if c, ok := newest[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// serve answers revision queries from l.
func (f *fixture) serve(l *changeLog) {
	f.remote.EXPECT().RetrieveOutstandingChanges(gomock.Any(), gomock.Any()).DoAndReturn(l.since).AnyTimes()
	f.remote.EXPECT().LatestRevisions(gomock.Any(), gomock.Any()).DoAndReturn(l.latest).AnyTimes()
}
