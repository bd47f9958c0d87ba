package pager

// treeCursor adapts a *BTree (plus its forward BIter) to the Cursor
// interface. Read-only cursors get a tree whose new/del callbacks panic if
// ever invoked; Insert/Delete on one return ErrReadOnly before that can
// happen.
type treeCursor struct {
	tree     *BTree
	it       *BIter
	writable bool
	onWrite  func() // notifies the owning txn that the tree's root may have changed
}

func newCursor(tree *BTree, writable bool, onWrite func()) *treeCursor {
	return &treeCursor{tree: tree, writable: writable, onWrite: onWrite}
}

func (c *treeCursor) SeekFirst() { c.it = c.tree.SeekFirst() }

func (c *treeCursor) Seek(key []byte) {
	it := c.tree.SeekLE(key)
	if it.Valid() {
		k, _ := it.Deref()
		if string(k) != string(key) {
			// SeekLE lands on the greatest key <= target; Seek wants the
			// least key >= target, so step forward once if we undershot.
			it.Next()
		}
	}
	c.it = it
}

func (c *treeCursor) Next() {
	if c.it != nil {
		c.it.Next()
	}
}

func (c *treeCursor) Eof() bool { return c.it == nil || !c.it.Valid() }

func (c *treeCursor) Key() []byte {
	if c.Eof() {
		return nil
	}
	k, _ := c.it.Deref()
	return k
}

func (c *treeCursor) Value() []byte {
	if c.Eof() {
		return nil
	}
	_, v := c.it.Deref()
	return v
}

func (c *treeCursor) Get(key []byte) ([]byte, bool) { return c.tree.Get(key) }

func (c *treeCursor) Insert(key, val []byte) error {
	if !c.writable {
		return ErrReadOnly
	}
	if err := c.tree.Insert(key, val); err != nil {
		return err
	}
	if c.onWrite != nil {
		c.onWrite()
	}
	return nil
}

func (c *treeCursor) Delete(key []byte) (bool, error) {
	if !c.writable {
		return false, ErrReadOnly
	}
	ok, err := c.tree.Delete(key)
	if err != nil {
		return false, err
	}
	if ok && c.onWrite != nil {
		c.onWrite()
	}
	return ok, nil
}

func (c *treeCursor) Close() { c.it = nil }
