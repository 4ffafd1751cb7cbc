package dumbfs

// Cursor walks the dirent table in slot order, skipping free slots (spec
// §6's iterate operation). It holds no flash resources between calls, so
// it's safe to abandon mid-iteration.
type Cursor struct {
	m   *Mount
	pos uint32
}

// Iterate returns a Cursor positioned before the first live entry. The
// cursor is advanced past inode 0 (root itself): root is never a result
// of iteration, only of Root() (spec §4.4).
func (m *Mount) Iterate() *Cursor {
	return &Cursor{m: m, pos: rootIndex + 1}
}

// Next advances the cursor and returns the next live entry, or (nil, nil)
// once the table is exhausted.
func (c *Cursor) Next() (*Inode, error) {
	for c.pos < c.m.SB.MaxInodeCount {
		idx := c.pos
		c.pos++
		d, err := readDirent(c.m, idx)
		if err != nil {
			return nil, err
		}
		if d.free() {
			continue
		}
		return &Inode{index: idx, d: *d}, nil
	}
	return nil, nil
}
