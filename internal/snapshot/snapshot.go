// Package snapshot models a project as an ordered set of file paths and
// contents, and computes the minimal delta between two such sets.
package snapshot

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// BinaryPrefix marks content that carries base64-encoded bytes instead of text.
const BinaryPrefix = "base64::"

// File is a single project-relative path and its content.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// IsBinary reports whether the content is tagged as base64 binary.
func (f File) IsBinary() bool {
	return strings.HasPrefix(f.Content, BinaryPrefix)
}

// Bytes decodes the file content into the bytes that belong on disk.
func (f File) Bytes() ([]byte, error) {
	return Decode(f.Content)
}

// Snapshot is a point-in-time list of project files. Snapshots are treated
// as immutable values: nothing in this package modifies one in place.
type Snapshot []File

// Index maps each path to its content. When a path repeats, the last entry wins.
func (s Snapshot) Index() map[string]string {
	idx := make(map[string]string, len(s))
	for _, f := range s {
		idx[f.Path] = f.Content
	}
	return idx
}

// Paths returns the distinct paths in snapshot order.
func (s Snapshot) Paths() []string {
	seen := make(map[string]bool, len(s))
	paths := make([]string, 0, len(s))
	for _, f := range s {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		paths = append(paths, f.Path)
	}
	return paths
}

// Get returns the content recorded for path.
func (s Snapshot) Get(path string) (string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Path == path {
			return s[i].Content, true
		}
	}
	return "", false
}

// Decode turns stored content into raw bytes, decoding base64 when tagged.
func Decode(content string) ([]byte, error) {
	if !strings.HasPrefix(content, BinaryPrefix) {
		return []byte(content), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(content, BinaryPrefix))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 content: %w", err)
	}
	return data, nil
}

// Encode is the inverse of Decode: valid UTF-8 without NUL bytes is kept as
// text, anything else is tagged and base64-encoded.
func Encode(data []byte) string {
	if utf8.Valid(data) && !containsNUL(data) {
		return string(data)
	}
	return BinaryPrefix + base64.StdEncoding.EncodeToString(data)
}

func containsNUL(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return true
		}
	}
	return false
}
