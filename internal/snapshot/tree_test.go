package snapshot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTree(t *testing.T) {
	s := Snapshot{
		{"package.json", "{}"},
		{"src/main.ts", "console.log(1)"},
		{"src/assets/logo.png", BinaryPrefix + "iVBORw0K"},
		{"./public/index.html", "<html></html>"},
	}

	tree, err := BuildTree(s, nil)
	require.NoError(t, err)

	require.Contains(t, tree, "src")
	require.True(t, tree["src"].IsDir())
	assert.Equal(t, []byte("console.log(1)"), tree["src"].Directory["main.ts"].Contents)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n'}, tree["src"].Directory["assets"].Directory["logo.png"].Contents)
	assert.Contains(t, tree, "public")
	assert.Equal(t, 4, tree.Count())
}

func TestBuildTreeTransformsTextOnly(t *testing.T) {
	s := Snapshot{
		{"a.txt", "hello"},
		{"b.bin", BinaryPrefix + "AAE="},
	}
	var seen []string
	tree, err := BuildTree(s, func(name, content string) string {
		seen = append(seen, name)
		return strings.ToUpper(content)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, seen)
	assert.Equal(t, []byte("HELLO"), tree["a.txt"].Contents)
	assert.Equal(t, []byte{0, 1}, tree["b.bin"].Contents)
}

func TestBuildTreeErrors(t *testing.T) {
	tests := []struct {
		name string
		s    Snapshot
	}{
		{"escaping path", Snapshot{{"../etc/passwd", "x"}}},
		{"empty path", Snapshot{{"", "x"}}},
		{"file then directory", Snapshot{{"a", "x"}, {"a/b", "y"}}},
		{"directory then file", Snapshot{{"a/b", "y"}, {"a", "x"}}},
		{"bad base64", Snapshot{{"a", BinaryPrefix + "!!!"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildTree(tt.s, nil)
			assert.Error(t, err)
		})
	}
}

func TestTreeWalkOrder(t *testing.T) {
	tree, err := BuildTree(Snapshot{{"b/z", ""}, {"a", ""}, {"b/a", ""}}, nil)
	require.NoError(t, err)

	var paths []string
	require.NoError(t, tree.Walk(func(p string, _ []byte) error {
		paths = append(paths, p)
		return nil
	}))
	assert.Equal(t, []string{"a", "b/a", "b/z"}, paths)
}

func TestEncodeDecode(t *testing.T) {
	assert.Equal(t, "plain text", Encode([]byte("plain text")))

	bin := []byte{0x00, 0xff, 0x10}
	enc := Encode(bin)
	assert.True(t, strings.HasPrefix(enc, BinaryPrefix))

	dec, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, bin, dec)
}

func TestCleanPath(t *testing.T) {
	got, err := CleanPath("/src//main.ts")
	require.NoError(t, err)
	assert.Equal(t, "src/main.ts", got)

	got, err = CleanPath(`src\win.ts`)
	require.NoError(t, err)
	assert.Equal(t, "src/win.ts", got)
}
