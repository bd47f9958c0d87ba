package pager

import (
	"bytes"
	"fmt"
)

// checkTree walks every node reachable from root, verifying that keys
// within a node are strictly ascending (after the permanent dummy key),
// that internal nodes' child pointers resolve, and that every pointer lies
// within the flushed region of the file.
func checkTree(pp *pagePool, root uint64, label string) error {
	if root == 0 {
		return nil
	}
	return checkNode(pp, root, label)
}

func checkNode(pp *pagePool, ptr uint64, label string) error {
	if ptr == 0 || ptr >= pp.flushed {
		return fmt.Errorf("table %s: pointer %d out of range", label, ptr)
	}
	raw, err := pp.readPage(ptr)
	if err != nil {
		return fmt.Errorf("table %s: %w", label, err)
	}
	node := BNode(raw)
	nkeys := node.nkeys()
	if nkeys == 0 {
		return fmt.Errorf("table %s: page %d has zero keys", label, ptr)
	}
	var prev []byte
	for i := uint16(0); i < nkeys; i++ {
		key := node.getKey(i)
		if i > 1 && bytes.Compare(prev, key) >= 0 {
			return fmt.Errorf("table %s: page %d keys out of order at %d", label, ptr, i)
		}
		prev = key
		if node.btype() == bnodeInternal {
			if err := checkNode(pp, node.getPtr(i), label); err != nil {
				return err
			}
		}
	}
	return nil
}

// integrityCheck walks the directory plus any extra roots the caller wants
// swept (e.g. a table just dropped but not yet reclaimed) and reports the
// first structural problem found, if any.
func integrityCheck(pp *pagePool, dir directory, extra ...uint64) (bool, string) {
	for id, root := range dir {
		if err := checkTree(pp, root, fmt.Sprintf("#%d", id)); err != nil {
			return false, err.Error()
		}
	}
	for _, root := range extra {
		if err := checkTree(pp, root, "extra"); err != nil {
			return false, err.Error()
		}
	}
	return true, "ok"
}
