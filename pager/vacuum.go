package pager

import "sort"

// incrementalVacuum releases up to n trailing pages back to the filesystem.
// Relocating a non-trailing free page would require rewriting every parent
// pointer along the path to it, which needs full tree-aware bookkeeping this
// module does not keep (the freelist only remembers page numbers, not their
// referring internal nodes). Instead, trailing free pages — the common case
// after deleting recently-appended data, and the steady-state case once a
// few vacuum passes have run — are truncated away; free pages in the middle
// of the file stay allocated-but-unused until reuse or until they become
// trailing themselves. n == 0 means "as many as currently reclaimable".
func incrementalVacuum(pp *pagePool, n int) (int, error) {
	if len(pp.free) == 0 {
		return 0, nil
	}
	sort.Slice(pp.free, func(i, j int) bool { return pp.free[i].ptr < pp.free[j].ptr })

	reclaimed := 0
	for len(pp.free) > 0 {
		if n > 0 && reclaimed >= n {
			break
		}
		last := pp.free[len(pp.free)-1]
		if last.ptr != pp.flushed-1 {
			break // not trailing: nothing more can be reclaimed this pass
		}
		pp.free = pp.free[:len(pp.free)-1]
		pp.flushed--
		reclaimed++
	}
	if reclaimed == 0 {
		return 0, nil
	}
	if pp.physFlushed > pp.flushed {
		pp.physFlushed = pp.flushed
	}
	if err := pp.file.Truncate(int64(pp.flushed) * int64(pp.pageSize)); err != nil {
		return reclaimed, err
	}
	return reclaimed, pp.file.Sync()
}
