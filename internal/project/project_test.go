package project

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zpdzap/sandpit/internal/snapshot"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestLoadWalksPlainDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"package.json":             "{}",
		"src/main.ts":              "console.log(1)",
		"node_modules/x/index.js":  "skip",
		".sandpit/config.yaml":     "skip",
		"dist/bundle.js":           "skip",
		"src/debug.log":            "skip",
		"public/nested/robots.txt": "ok",
	})

	snap, err := Load(dir, []string{"dist/", "*.log"})
	require.NoError(t, err)
	assert.Equal(t, []string{"package.json", "public/nested/robots.txt", "src/main.ts"}, snap.Paths())
	content, _ := snap.Get("src/main.ts")
	assert.Equal(t, "console.log(1)", content)
}

func TestLoadEncodesBinary(t *testing.T) {
	dir := t.TempDir()
	png := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), png, 0o644))

	snap, err := Load(dir, nil)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.True(t, snap[0].IsBinary())
	data, err := snap[0].Bytes()
	require.NoError(t, err)
	assert.Equal(t, png, data)
}

func TestLoadUsesGitListing(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	cmd := exec.Command("git", "init", "-q")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	writeFiles(t, dir, map[string]string{
		".gitignore":     "build/\n",
		"index.html":     "<p>",
		"build/out.js":   "ignored by git",
		"src/untracked":  "listed",
	})

	snap, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{".gitignore", "index.html", "src/untracked"}, snap.Paths())
}

func TestLoadIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"b": "2", "a": "1", "c/d": "3"})

	first, err := Load(dir, nil)
	require.NoError(t, err)
	second, err := Load(dir, nil)
	require.NoError(t, err)
	assert.True(t, snapshot.Compare(first, second, "package.json").Empty())
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"node_modules/a/b.js", []string{"node_modules/"}, true},
		{"packages/web/node_modules/a.js", []string{"node_modules/"}, true},
		{"node_modules", []string{"node_modules/"}, false},
		{"node_modules/", []string{"node_modules/"}, true},
		{"src/app.log", []string{"*.log"}, true},
		{"src/app.ts", []string{"*.log"}, false},
		{"docs/internal/x.md", []string{"docs/internal/"}, true},
		{"README.md", []string{"README.md"}, true},
		{"src/README.md", []string{"/README.md"}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Ignored(tt.path, tt.patterns), "%s %v", tt.path, tt.patterns)
	}
}
