package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccepts(t *testing.T) {
	root := "/project"
	m, err := Parse(root, []byte(`
# comments and blank lines are skipped

*.log
/force-app/main/default/profiles/
**/jsconfig.json
!keep.log
`))
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"force-app/main/default/classes/A.cls", true},
		{"force-app/debug.log", false},
		{"force-app/keep.log", true},
		{"force-app/main/default/profiles/Admin.profile-meta.xml", false},
		{"force-app/main/default/profiles", false},
		{"other/main/default/profiles/Admin.profile-meta.xml", true},
		{"force-app/lwc/jsconfig.json", false},
		{"force-app/.git/config", false},
		{"force-app/classes/A.cls-meta.xml.dup", false},
		{"/project/force-app/debug.log", false},
		{"/project/force-app/classes/A.cls", true},
		{".", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Accepts(tt.path))
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	root := t.TempDir()
	m, err := Load(root)
	require.NoError(t, err)
	assert.True(t, m.Accepts(filepath.Join(root, "a", "b.xml")))
	assert.False(t, m.Accepts(filepath.Join(root, ".syncignore")))
}

func TestLoadReadsFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("secret/\n"), 0o644))
	m, err := Load(root)
	require.NoError(t, err)
	assert.False(t, m.Accepts(filepath.Join(root, "pkg", "secret", "a.xml")))
}

func TestStateDirRule(t *testing.T) {
	root := t.TempDir()
	m, err := Load(root, DirRule(root, filepath.Join("force-app", ".state")))
	require.NoError(t, err)
	assert.False(t, m.Accepts(filepath.Join(root, "force-app", ".state", "remotes", "x", "sourcePathInfos.json")))
	assert.True(t, m.Accepts(filepath.Join(root, "other", ".state", "a.xml")))
	assert.True(t, m.Accepts(filepath.Join(root, "force-app", ".srcsync", "a.xml")))

	assert.Equal(t, "/.srcsync/", DirRule(root, filepath.Join(root, ".srcsync")))
	assert.Empty(t, DirRule(root, filepath.Join(filepath.Dir(root), "elsewhere")))
}

func TestParseRejectsInvalidPattern(t *testing.T) {
	_, err := Parse("/p", []byte("[unclosed\n"))
	assert.Error(t, err)
}
