package sandbox

import (
	"context"

	"github.com/zpdzap/sandpit/internal/runtime"
	"github.com/zpdzap/sandpit/internal/shim"
	"github.com/zpdzap/sandpit/internal/snapshot"
)

// applyDiff issues one write per changed file and one remove per deleted
// path. Each call stands alone: a failure is recorded and the rest still run.
func applyDiff(ctx context.Context, rt runtime.Runtime, d snapshot.Diff) (map[string]bool, []*FileError) {
	failed := make(map[string]bool)
	var errs []*FileError

	for _, f := range d.ChangedOrNew {
		if err := writeFile(ctx, rt, f); err != nil {
			failed[f.Path] = true
			errs = append(errs, &FileError{Op: "write", Path: f.Path, Err: err})
		}
	}
	for _, path := range d.Deleted {
		if err := rt.Remove(ctx, path); err != nil {
			failed[path] = true
			errs = append(errs, &FileError{Op: "remove", Path: path, Err: err})
		}
	}
	return failed, errs
}

func writeFile(ctx context.Context, rt runtime.Runtime, f snapshot.File) error {
	if f.IsBinary() {
		data, err := f.Bytes()
		if err != nil {
			return err
		}
		return rt.WriteFile(ctx, f.Path, data)
	}
	return rt.WriteFile(ctx, f.Path, []byte(shim.Transform(f.Path, f.Content)))
}

// retain is the snapshot to record after a sync. Paths whose write or remove
// failed keep their previously recorded content, or stay absent, so the next
// diff picks them up again.
func retain(prev, next snapshot.Snapshot, failed map[string]bool) snapshot.Snapshot {
	if len(failed) == 0 {
		return next
	}
	old := prev.Index()
	cur := next.Index()

	out := make(snapshot.Snapshot, 0, len(next))
	for _, path := range next.Paths() {
		if !failed[path] {
			out = append(out, snapshot.File{Path: path, Content: cur[path]})
			continue
		}
		if content, ok := old[path]; ok {
			out = append(out, snapshot.File{Path: path, Content: content})
		}
	}
	for _, path := range prev.Paths() {
		if _, ok := cur[path]; ok || !failed[path] {
			continue
		}
		out = append(out, snapshot.File{Path: path, Content: old[path]})
	}
	return out
}
