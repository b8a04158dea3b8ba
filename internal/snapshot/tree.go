package snapshot

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Node is either a file (Contents set) or a directory (Directory set).
type Node struct {
	Contents  []byte
	Directory Tree
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Directory != nil
}

// Tree is a nested directory listing keyed by path segment.
type Tree map[string]*Node

// TransformFunc rewrites text content before it lands in the sandbox.
type TransformFunc func(name, content string) string

// CleanPath normalises a project-relative path and rejects paths that would
// leave the project root.
func CleanPath(p string) (string, error) {
	slashed := strings.ReplaceAll(p, "\\", "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("project path %q escapes the project root", p)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if cleaned == "" {
		return "", fmt.Errorf("invalid project path %q", p)
	}
	return cleaned, nil
}

// BuildTree nests every file of s into a Tree, decoding binary entries and
// running text entries through transform (which may be nil).
func BuildTree(s Snapshot, transform TransformFunc) (Tree, error) {
	root := Tree{}
	idx := s.Index()
	for _, p := range s.Paths() {
		content := idx[p]
		clean, err := CleanPath(p)
		if err != nil {
			return nil, err
		}

		var data []byte
		if strings.HasPrefix(content, BinaryPrefix) {
			data, err = Decode(content)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		} else {
			if transform != nil {
				content = transform(clean, content)
			}
			data = []byte(content)
		}

		if err := root.insert(strings.Split(clean, "/"), data); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return root, nil
}

func (t Tree) insert(segments []string, data []byte) error {
	dir := t
	for _, seg := range segments[:len(segments)-1] {
		node, ok := dir[seg]
		if !ok {
			node = &Node{Directory: Tree{}}
			dir[seg] = node
		}
		if !node.IsDir() {
			return fmt.Errorf("%q is a file, not a directory", seg)
		}
		dir = node.Directory
	}

	name := segments[len(segments)-1]
	if existing, ok := dir[name]; ok && existing.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", name)
	}
	if data == nil {
		data = []byte{}
	}
	dir[name] = &Node{Contents: data}
	return nil
}

// Walk visits every file in the tree in lexical path order.
func (t Tree) Walk(fn func(path string, data []byte) error) error {
	return t.walk("", fn)
}

func (t Tree) walk(prefix string, fn func(string, []byte) error) error {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := t[name]
		full := name
		if prefix != "" {
			full = prefix + "/" + name
		}
		if node.IsDir() {
			if err := node.Directory.walk(full, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(full, node.Contents); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of files in the tree.
func (t Tree) Count() int {
	n := 0
	t.Walk(func(string, []byte) error {
		n++
		return nil
	})
	return n
}
