package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/zpdzap/sandpit/internal/snapshot"
)

var (
	diffFileStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	diffDirStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5599FF")).Bold(true)
	diffNewStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00CC00")).Bold(true)
	diffDelFileStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444")).Bold(true)
	diffTreeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	diffWarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00")).Bold(true)
	diffHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD700"))
	diffDimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

type dirNode struct {
	name     string
	children map[string]*dirNode
	files    []snapshot.Change
}

func newDirNode(name string) *dirNode {
	return &dirNode{name: name, children: make(map[string]*dirNode)}
}

// buildSyncTree renders the paths touched by the last sync as a file tree.
func buildSyncTree(changes []snapshot.Change, syncErrors []string) string {
	if len(changes) == 0 {
		return diffDimStyle.Render("No files synced yet")
	}

	sorted := append([]snapshot.Change(nil), changes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	root := newDirNode("")
	counts := map[snapshot.ChangeKind]int{}
	for _, c := range sorted {
		counts[c.Kind]++
		parts := strings.Split(c.Path, "/")
		node := root
		for _, dir := range parts[:len(parts)-1] {
			if _, ok := node.children[dir]; !ok {
				node.children[dir] = newDirNode(dir)
			}
			node = node.children[dir]
		}
		node.files = append(node.files, c)
	}

	var b strings.Builder
	b.WriteString(diffHeaderStyle.Render("last sync"))
	b.WriteString(diffDimStyle.Render(fmt.Sprintf("  %d file%s", len(sorted), plural(len(sorted)))))
	b.WriteString("\n")

	renderTree(&b, root, "")

	b.WriteString("\n")
	var summary []string
	if n := counts[snapshot.Added]; n > 0 {
		summary = append(summary, diffNewStyle.Render(fmt.Sprintf("%d new", n)))
	}
	if n := counts[snapshot.Modified]; n > 0 {
		summary = append(summary, diffFileStyle.Render(fmt.Sprintf("%d modified", n)))
	}
	if n := counts[snapshot.Deleted]; n > 0 {
		summary = append(summary, diffDelFileStyle.Render(fmt.Sprintf("%d deleted", n)))
	}
	b.WriteString(strings.Join(summary, ", "))

	if len(syncErrors) > 0 {
		b.WriteString("\n")
		b.WriteString(diffWarnStyle.Render(fmt.Sprintf(
			"⚠ %d file%s failed to sync (retried on next change)", len(syncErrors), plural(len(syncErrors)))))
		for _, e := range syncErrors {
			b.WriteString("\n  ")
			b.WriteString(diffDimStyle.Render(e))
		}
	}

	return b.String()
}

func renderTree(b *strings.Builder, node *dirNode, prefix string) {
	var dirNames []string
	for name := range node.children {
		dirNames = append(dirNames, name)
	}
	sort.Strings(dirNames)

	type item struct {
		isDir  bool
		name   string
		change snapshot.Change
	}
	items := make([]item, 0, len(dirNames)+len(node.files))
	for _, d := range dirNames {
		items = append(items, item{isDir: true, name: d})
	}
	for _, f := range node.files {
		parts := strings.Split(f.Path, "/")
		items = append(items, item{name: parts[len(parts)-1], change: f})
	}

	for i, it := range items {
		isLast := i == len(items)-1
		connector := "├── "
		childPrefix := "│   "
		if isLast {
			connector = "└── "
			childPrefix = "    "
		}

		if it.isDir {
			b.WriteString(diffTreeStyle.Render(prefix+connector) + diffDirStyle.Render(it.name+"/") + "\n")
			renderTree(b, node.children[it.name], prefix+childPrefix)
		} else {
			renderFileEntry(b, prefix+connector, it.name, it.change.Kind)
		}
	}
}

func renderFileEntry(b *strings.Builder, prefix, name string, kind snapshot.ChangeKind) {
	nameStyle := diffFileStyle
	var badge string

	switch kind {
	case snapshot.Added:
		nameStyle = diffNewStyle
		badge = diffNewStyle.Render("new")
	case snapshot.Deleted:
		nameStyle = diffDelFileStyle
		badge = diffDelFileStyle.Render("deleted")
	}

	line := diffTreeStyle.Render(prefix) + nameStyle.Render(name)
	if badge != "" {
		line += " " + badge
	}
	b.WriteString(line + "\n")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
