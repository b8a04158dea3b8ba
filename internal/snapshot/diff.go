package snapshot

// ChangeKind classifies a single path in a Diff.
type ChangeKind string

const (
	Added    ChangeKind = "A"
	Modified ChangeKind = "M"
	Deleted  ChangeKind = "D"
)

// Change is one path-level entry of a Diff, for display.
type Change struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
}

// Diff is the file-level delta between two snapshots.
type Diff struct {
	// ChangedOrNew holds entries of next that are new or whose content differs, in next order.
	ChangedOrNew []File
	// Deleted holds paths of previous that are absent from next, in previous order.
	Deleted []string
	// ManifestChanged is set when the manifest was written or deleted, or previous was empty.
	ManifestChanged bool

	added map[string]bool
}

// Empty reports whether nothing needs to be written or removed.
func (d Diff) Empty() bool {
	return len(d.ChangedOrNew) == 0 && len(d.Deleted) == 0
}

// Changes lists every path in the diff tagged with its kind.
func (d Diff) Changes() []Change {
	changes := make([]Change, 0, len(d.ChangedOrNew)+len(d.Deleted))
	for _, f := range d.ChangedOrNew {
		kind := Modified
		if d.added[f.Path] {
			kind = Added
		}
		changes = append(changes, Change{Path: f.Path, Kind: kind})
	}
	for _, p := range d.Deleted {
		changes = append(changes, Change{Path: p, Kind: Deleted})
	}
	return changes
}

// Compare computes what must change to turn previous into next. Content is
// compared byte for byte and entry order carries no meaning. An empty
// previous snapshot always counts as a manifest change so that a cold start
// installs dependencies.
func Compare(previous, next Snapshot, manifestPath string) Diff {
	prev := previous.Index()
	cur := next.Index()

	d := Diff{
		ManifestChanged: len(previous) == 0,
		added:           make(map[string]bool),
	}

	for _, path := range next.Paths() {
		content := cur[path]
		old, ok := prev[path]
		if ok && old == content {
			continue
		}
		if !ok {
			d.added[path] = true
		}
		d.ChangedOrNew = append(d.ChangedOrNew, File{Path: path, Content: content})
		if path == manifestPath {
			d.ManifestChanged = true
		}
	}

	for _, path := range previous.Paths() {
		if _, ok := cur[path]; ok {
			continue
		}
		d.Deleted = append(d.Deleted, path)
		if path == manifestPath {
			d.ManifestChanged = true
		}
	}

	return d
}
