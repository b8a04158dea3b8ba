// Package project reads a project directory on the host into a snapshot.
package project

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zpdzap/sandpit/internal/config"
	"github.com/zpdzap/sandpit/internal/snapshot"
)

// MaxFileSize is the largest file read into a snapshot. Larger files are skipped.
const MaxFileSize = 8 << 20

// alwaysIgnored never belong in the sandbox: VCS metadata, sandpit's own
// state and installed dependencies, which the sandbox installs itself.
var alwaysIgnored = []string{".git/", config.Dir + "/", "node_modules/"}

// Load lists the files of the project at dir and reads them into a
// snapshot, sorted by path. Inside a git work tree the listing follows git
// (tracked plus untracked, honoring .gitignore); elsewhere the directory is walked.
func Load(dir string, ignore []string) (snapshot.Snapshot, error) {
	paths, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}

	patterns := append(append([]string(nil), alwaysIgnored...), ignore...)
	snap := make(snapshot.Snapshot, 0, len(paths))
	for _, p := range paths {
		if Ignored(p, patterns) {
			continue
		}
		full := filepath.Join(dir, filepath.FromSlash(p))
		info, err := os.Lstat(full)
		if err != nil {
			// Listed by git but deleted from the work tree.
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.Mode().IsRegular() || info.Size() > MaxFileSize {
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		snap = append(snap, snapshot.File{Path: p, Content: snapshot.Encode(data)})
	}
	return snap, nil
}

// ListFiles returns slash-separated project-relative file paths, sorted.
func ListFiles(dir string) ([]string, error) {
	if paths, err := gitFiles(dir); err == nil {
		return paths, nil
	}
	return walkFiles(dir)
}

func gitFiles(dir string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard", "-z")
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files: %s: %w", strings.TrimSpace(stderr.String()), err)
	}

	seen := make(map[string]bool)
	var paths []string
	for _, p := range strings.Split(string(out), "\x00") {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func walkFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if Ignored(rel+"/", alwaysIgnored) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Ignored reports whether p matches any pattern. A pattern ending in "/"
// matches a directory anywhere in the path; other patterns are globs
// matched against the full path and against the base name.
func Ignored(p string, patterns []string) bool {
	segments := strings.Split(strings.TrimSuffix(p, "/"), "/")
	dirs := segments[:len(segments)-1]
	if strings.HasSuffix(p, "/") {
		dirs = segments
	}

	for _, pattern := range patterns {
		if d, ok := strings.CutSuffix(pattern, "/"); ok {
			for _, seg := range dirs {
				if match, _ := path.Match(d, seg); match {
					return true
				}
			}
			if strings.Contains(d, "/") && strings.HasPrefix(p, pattern) {
				return true
			}
			continue
		}
		if match, _ := path.Match(pattern, p); match {
			return true
		}
		if match, _ := path.Match(pattern, path.Base(p)); match {
			return true
		}
	}
	return false
}
