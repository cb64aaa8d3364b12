package remote

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

func TestManifestXML(t *testing.T) {
	m := ManifestOf("60.0",
		metadata.Identity{Type: "CustomObject", FullName: "Account"},
		metadata.Identity{Type: "ApexClass", FullName: "B"},
		metadata.Identity{Type: "ApexClass", FullName: "A"},
	)
	data, err := m.XML()
	require.NoError(t, err)

	want := `<?xml version="1.0" encoding="UTF-8"?>
<Package xmlns="http://soap.sforce.com/2006/04/metadata">
    <types>
        <members>A</members>
        <members>B</members>
        <name>ApexClass</name>
    </types>
    <types>
        <members>Account</members>
        <name>CustomObject</name>
    </types>
    <version>60.0</version>
</Package>
`
	assert.Equal(t, want, string(data))

	parsed, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, "60.0", parsed.Version)
	assert.Equal(t, m.Identities(), parsed.Identities())
	assert.True(t, parsed.Contains(metadata.Identity{Type: "ApexClass", FullName: "A"}))
	assert.False(t, parsed.Contains(metadata.Identity{Type: "ApexClass", FullName: "C"}))
	assert.Equal(t, 3, parsed.Len())
}

func TestManifestEmpty(t *testing.T) {
	m := NewManifest("60.0")
	assert.True(t, m.Empty())
	var nilManifest *Manifest
	assert.False(t, nilManifest.Contains(metadata.Identity{Type: "A", FullName: "B"}))
}

func TestParseManifestRejects(t *testing.T) {
	for _, doc := range []string{
		"not xml <",
		`<Other/>`,
		`<Package><types><members>A</members></types></Package>`,
	} {
		_, err := ParseManifest([]byte(doc))
		require.Error(t, err, doc)
		assert.True(t, errors.Is(err, errUtils.ErrParse))
	}
}
