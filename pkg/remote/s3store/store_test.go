package s3store

import (
	"context"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
)

const accountV1 = `<?xml version="1.0" encoding="UTF-8"?>
<CustomObject xmlns="http://soap.sforce.com/2006/04/metadata">
    <label>Account</label>
    <fields>
        <fullName>F1__c</fullName>
        <type>Text</type>
    </fields>
    <fields>
        <fullName>F2__c</fullName>
        <type>Text</type>
    </fields>
</CustomObject>
`

const accountV2 = `<?xml version="1.0" encoding="UTF-8"?>
<CustomObject xmlns="http://soap.sforce.com/2006/04/metadata">
    <label>Account</label>
    <fields>
        <fullName>F1__c</fullName>
        <type>Checkbox</type>
    </fields>
    <fields>
        <fullName>F3__c</fullName>
        <type>Text</type>
    </fields>
</CustomObject>
`

const fooClassMeta = `<?xml version="1.0" encoding="UTF-8"?>
<ApexClass xmlns="http://soap.sforce.com/2006/04/metadata">
    <apiVersion>60.0</apiVersion>
</ApexClass>
`

var account = metadata.Identity{Type: "CustomObject", FullName: "Account"}

func newTestStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := newFakeS3()
	s, err := New(fake, "s3://bucket/org", Options{})
	require.NoError(t, err)
	s.bucket.baseDelay = time.Millisecond
	return s, fake
}

func archive(t *testing.T, members, destructive []metadata.Identity, files map[string]string) []byte {
	t.Helper()
	pkg, err := remote.ManifestOf("60.0", members...).XML()
	require.NoError(t, err)
	entries := map[string][]byte{remote.ManifestFileName: pkg}
	if len(destructive) > 0 {
		d, err := remote.ManifestOf("60.0", destructive...).XML()
		require.NoError(t, err)
		entries[remote.DestructiveFileName] = d
	}
	for name, body := range files {
		entries[name] = []byte(body)
	}
	zip, err := remote.ZipFiles(entries)
	require.NoError(t, err)
	return zip
}

func deploy(t *testing.T, s *Store, zip []byte, opts remote.DeployOptions) *remote.DeployResult {
	t.Helper()
	ctx := context.Background()
	job, err := s.Deploy(ctx, zip, opts)
	require.NoError(t, err)
	res, err := remote.Await(ctx, job, remote.PollOptions{})
	require.NoError(t, err)
	assert.Equal(t, job.ID(), res.ID)
	return res
}

func retrieve(t *testing.T, s *Store, ids ...metadata.Identity) (*remote.RetrieveResult, map[string][]byte) {
	t.Helper()
	ctx := context.Background()
	job, err := s.Retrieve(ctx, remote.ManifestOf("60.0", ids...), remote.RetrieveOptions{})
	require.NoError(t, err)
	res, err := remote.Await(ctx, job, remote.PollOptions{})
	require.NoError(t, err)
	files, err := remote.ReadZip(res.ZipFile)
	require.NoError(t, err)
	return res, files
}

func field(name string) metadata.Identity {
	return metadata.Identity{Type: "CustomField", FullName: "Account." + name}
}

func TestNewRejectsInvalidURI(t *testing.T) {
	_, err := New(newFakeS3(), "bucket/org", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUtils.ErrInvalidProject))
}

func TestDeployThenRetrieve(t *testing.T) {
	s, fake := newTestStore(t)

	res := deploy(t, s, archive(t, []metadata.Identity{account}, nil,
		map[string]string{"objects/Account.object": accountV1}), remote.DeployOptions{})
	assert.Equal(t, remote.StatusSucceeded, res.Status)
	require.Len(t, res.Components, 1)
	assert.Equal(t, remote.ComponentResult{
		Type: "CustomObject", FullName: "Account", FileName: "objects/Account.object", Success: true,
	}, res.Components[0])

	stored, ok := fake.object("org/tree/objects/Account.object")
	require.True(t, ok)
	assert.Equal(t, accountV1, string(stored))

	changes, err := s.RetrieveOutstandingChanges(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []remote.ChangeElement{
		{Type: "CustomObject", FullName: "Account", Revision: 1},
		{Type: "CustomField", FullName: "Account.F1__c", Revision: 2},
		{Type: "CustomField", FullName: "Account.F2__c", Revision: 3},
	}, changes)

	got, files := retrieve(t, s, account)
	assert.Equal(t, remote.StatusSucceeded, got.Status)
	assert.Equal(t, []remote.FileProperty{
		{Type: "CustomObject", FullName: "Account", FileName: "objects/Account.object"},
	}, got.FileProperties)
	assert.Equal(t, accountV1, string(files["objects/Account.object"]))
}

func TestDeployRecordsChildChanges(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	deploy(t, s, archive(t, []metadata.Identity{account}, nil,
		map[string]string{"objects/Account.object": accountV1}), remote.DeployOptions{})
	deploy(t, s, archive(t, []metadata.Identity{account}, nil,
		map[string]string{"objects/Account.object": accountV2}), remote.DeployOptions{})

	changes, err := s.RetrieveOutstandingChanges(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []remote.ChangeElement{
		{Type: "CustomField", FullName: "Account.F1__c", Revision: 4},
		{Type: "CustomField", FullName: "Account.F2__c", Revision: 5, Deleted: true},
		{Type: "CustomField", FullName: "Account.F3__c", Revision: 6},
	}, changes)

	latest, err := s.LatestRevisions(ctx, []metadata.Identity{account, field("F2__c"), field("Missing__c")})
	require.NoError(t, err)
	assert.Equal(t, []remote.ChangeElement{
		{Type: "CustomObject", FullName: "Account", Revision: 1},
		{Type: "CustomField", FullName: "Account.F2__c", Revision: 5, Deleted: true},
	}, latest)
}

func TestDeployUnchangedRecordsNothing(t *testing.T) {
	s, _ := newTestStore(t)
	zip := archive(t, []metadata.Identity{account}, nil, map[string]string{"objects/Account.object": accountV1})

	deploy(t, s, zip, remote.DeployOptions{})
	deploy(t, s, zip, remote.DeployOptions{})

	changes, err := s.RetrieveOutstandingChanges(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDeployCheckOnlyWritesNothing(t *testing.T) {
	s, fake := newTestStore(t)

	res := deploy(t, s, archive(t, []metadata.Identity{account}, nil,
		map[string]string{"objects/Account.object": accountV1}), remote.DeployOptions{CheckOnly: true})

	assert.Equal(t, remote.StatusSucceeded, res.Status)
	assert.Zero(t, fake.puts)
}

func TestDeployComponentFailures(t *testing.T) {
	s, _ := newTestStore(t)
	broken := metadata.Identity{Type: "Layout", FullName: "Broken"}
	missing := metadata.Identity{Type: "Layout", FullName: "Missing"}

	res := deploy(t, s, archive(t, []metadata.Identity{account, broken, missing}, nil, map[string]string{
		"objects/Account.object": accountV1,
		"layouts/Broken.layout":  "<Layout><unclosed></Layout>",
	}), remote.DeployOptions{})

	assert.Equal(t, remote.StatusSucceededPartial, res.Status)
	byName := make(map[string]remote.ComponentResult)
	for _, c := range res.Components {
		byName[c.FullName] = c
	}
	assert.True(t, byName["Account"].Success)
	assert.False(t, byName["Broken"].Success)
	assert.NotEmpty(t, byName["Broken"].Problem)
	assert.False(t, byName["Missing"].Success)
	assert.Equal(t, "file not found in deploy archive", byName["Missing"].Problem)
}

func TestDeployRequiresManifest(t *testing.T) {
	s, _ := newTestStore(t)
	zip, err := remote.ZipFiles(map[string][]byte{"objects/Account.object": []byte(accountV1)})
	require.NoError(t, err)

	_, err = s.Deploy(context.Background(), zip, remote.DeployOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUtils.ErrParse))
}

func TestDestructiveChanges(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	deploy(t, s, archive(t, []metadata.Identity{account}, nil,
		map[string]string{"objects/Account.object": accountV1}), remote.DeployOptions{})

	t.Run("absent component is not found", func(t *testing.T) {
		res := deploy(t, s, archive(t, nil, []metadata.Identity{{Type: "ApexClass", FullName: "Gone"}}, nil),
			remote.DeployOptions{})
		assert.Equal(t, remote.StatusFailed, res.Status)
		require.Len(t, res.Components, 1)
		assert.Equal(t, remote.ProblemNotFound, res.Components[0].Problem)
		assert.True(t, res.Components[0].Deleted)
	})

	t.Run("unsupported delete fails", func(t *testing.T) {
		res := deploy(t, s, archive(t, nil, []metadata.Identity{{Type: "Flow", FullName: "F"}}, nil),
			remote.DeployOptions{})
		require.Len(t, res.Components, 1)
		assert.False(t, res.Components[0].Success)
		assert.Contains(t, res.Components[0].Problem, "not supported")
	})

	t.Run("single child is removed from its parent", func(t *testing.T) {
		res := deploy(t, s, archive(t, nil, []metadata.Identity{field("F1__c")}, nil), remote.DeployOptions{})
		assert.Equal(t, remote.StatusSucceeded, res.Status)
		assert.True(t, res.Components[0].Deleted)

		_, files := retrieve(t, s, account)
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromBytes(files["objects/Account.object"]))
		names := fieldNames(doc)
		assert.Equal(t, []string{"F2__c"}, names)

		latest, err := s.LatestRevisions(ctx, []metadata.Identity{field("F1__c")})
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.True(t, latest[0].Deleted)
	})

	t.Run("whole component", func(t *testing.T) {
		before, err := s.RetrieveOutstandingChanges(ctx, 0)
		require.NoError(t, err)
		watermark := remote.MaxRevision(before)

		res := deploy(t, s, archive(t, nil, []metadata.Identity{account}, nil), remote.DeployOptions{})
		assert.Equal(t, remote.StatusSucceeded, res.Status)
		_, ok := fake.object("org/tree/objects/Account.object")
		assert.False(t, ok)

		changes, err := s.RetrieveOutstandingChanges(ctx, watermark)
		require.NoError(t, err)
		assert.Equal(t, []remote.ChangeElement{
			{Type: "CustomField", FullName: "Account.F2__c", Revision: watermark + 1, Deleted: true},
			{Type: "CustomObject", FullName: "Account", Revision: watermark + 2, Deleted: true},
		}, changes)
	})
}

func fieldNames(doc *etree.Document) []string {
	var names []string
	for _, f := range doc.Root().SelectElements("fields") {
		names = append(names, f.SelectElement("fullName").Text())
	}
	return names
}

func TestRetrieveChildOnly(t *testing.T) {
	s, _ := newTestStore(t)
	deploy(t, s, archive(t, []metadata.Identity{account}, nil,
		map[string]string{"objects/Account.object": accountV1}), remote.DeployOptions{})

	res, files := retrieve(t, s, field("F1__c"), field("Nope__c"))

	assert.Equal(t, []remote.FileProperty{
		{Type: "CustomField", FullName: "Account.F1__c", FileName: "objects/Account.object"},
	}, res.FileProperties)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0].Problem, "Account.Nope__c")

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(files["objects/Account.object"]))
	assert.Equal(t, []string{"F1__c"}, fieldNames(doc))
	assert.Nil(t, doc.Root().SelectElement("label"))
}

func TestRetrieveMissingComponent(t *testing.T) {
	s, _ := newTestStore(t)

	res, files := retrieve(t, s, metadata.Identity{Type: "Layout", FullName: "Nope"},
		metadata.Identity{Type: "Unknown", FullName: "X"})

	assert.Equal(t, remote.StatusSucceeded, res.Status)
	assert.Empty(t, res.FileProperties)
	assert.Len(t, res.Messages, 2)
	assert.Empty(t, files)
}

func TestContentTypeComponents(t *testing.T) {
	s, fake := newTestStore(t)
	foo := metadata.Identity{Type: "ApexClass", FullName: "Foo"}

	deploy(t, s, archive(t, []metadata.Identity{foo}, nil, map[string]string{
		"classes/Foo.cls-meta.xml": fooClassMeta,
		"classes/Foo.cls":          "public class Foo {}",
	}), remote.DeployOptions{})

	assert.Equal(t, "application/xml", fake.contentTypes["org/tree/classes/Foo.cls-meta.xml"])
	assert.Equal(t, "application/json", fake.contentTypes["org/"+RevisionsKey])

	res, files := retrieve(t, s, foo)
	assert.Equal(t, []remote.FileProperty{
		{Type: "ApexClass", FullName: "Foo", FileName: "classes/Foo.cls-meta.xml"},
	}, res.FileProperties)
	assert.Equal(t, "public class Foo {}", string(files["classes/Foo.cls"]))
	assert.Equal(t, fooClassMeta, string(files["classes/Foo.cls-meta.xml"]))

	res2 := deploy(t, s, archive(t, []metadata.Identity{foo}, nil, map[string]string{
		"classes/Foo.cls-meta.xml": fooClassMeta,
	}), remote.DeployOptions{})
	assert.Equal(t, remote.StatusFailed, res2.Status)
}

func TestRetrieveWildcardPaginates(t *testing.T) {
	s, fake := newTestStore(t)
	fake.pageSize = 1

	files := make(map[string]string)
	var ids []metadata.Identity
	for _, name := range []string{"B", "A", "C"} {
		ids = append(ids, metadata.Identity{Type: "Layout", FullName: name})
		files["layouts/"+name+".layout"] = `<Layout xmlns="http://soap.sforce.com/2006/04/metadata"><label>` + name + `</label></Layout>`
	}
	deploy(t, s, archive(t, ids, nil, files), remote.DeployOptions{})

	res, got := retrieve(t, s, metadata.Identity{Type: "Layout", FullName: "*"})
	assert.Equal(t, []remote.FileProperty{
		{Type: "Layout", FullName: "A", FileName: "layouts/A.layout"},
		{Type: "Layout", FullName: "B", FileName: "layouts/B.layout"},
		{Type: "Layout", FullName: "C", FileName: "layouts/C.layout"},
	}, res.FileProperties)
	assert.Len(t, got, 3)
}

func TestRevisionLogRetriesThrottling(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	deploy(t, s, archive(t, []metadata.Identity{account}, nil,
		map[string]string{"objects/Account.object": accountV1}), remote.DeployOptions{})

	fake.throttle["org/"+RevisionsKey] = 2
	changes, err := s.RetrieveOutstandingChanges(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, changes, 3)

	s.bucket.maxRetries = 1
	fake.throttle["org/"+RevisionsKey] = 5
	_, err = s.RetrieveOutstandingChanges(ctx, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUtils.ErrRemote))
}
