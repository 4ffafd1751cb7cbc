package dumbfs

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/dumbfs/dumbfs/flash"
)

// rootName is the dirent name given to the root directory entry at
// format time. The root has no parent dirent and is never looked up by
// path traversal (DFS names are flat, spec §1 Non-goals), only by asking
// the Mount for it directly, hence the quirky non-path-like name (spec
// §9 design note: "root pathname quirk").
const rootName = "/"

// rootIndex is the dirent-table slot Format always assigns to the root.
const rootIndex = 0

// FormatOptions configures a fresh volume (spec §3/§6: format is part of
// the surface a VFS adapter drives at mkfs time).
type FormatOptions struct {
	// MaxInodeCount is the fixed capacity of the dirent table.
	MaxInodeCount uint32
	// MaxLen caps any single file's length (spec §9's min_file_size
	// knob): Create reserves exactly MaxLen bytes for every entry, and
	// every Truncate/Write enforces it as the ceiling.
	MaxLen uint32
	// UseRAMScratch selects RAM-scratch mode (spec §4.2); otherwise the
	// device's last block is reserved as a flash scratch block.
	UseRAMScratch bool
}

// Mount is a live handle on a formatted volume. It owns the
// buffered-rewrite engine and the superblock snapshot loaded at mount
// time; every operation below re-reads the dirent slots it touches, but
// SB is only updated by a successful Create.
type Mount struct {
	ID  string
	Dev flash.Device
	SB  *Superblock

	engine *writeEngine
}

// Format initializes dev as an empty DFS volume and returns a Mount for
// it, skipping the normal mount-time validation since the volume was
// just built in memory.
func Format(dev flash.Device, opts FormatOptions) (*Mount, error) {
	if opts.MaxInodeCount == 0 {
		return nil, fmt.Errorf("%w: max_inode_count must be > 0", ErrInval)
	}
	blockSize := dev.Geometry().UniformBlockSize()
	pageSize := uint32(dev.PageSize())
	if blockSize == 0 || blockSize%pageSize != 0 {
		return nil, fmt.Errorf("%w: block size %d must be a non-zero multiple of page size %d", ErrInval, blockSize, pageSize)
	}
	if uint64(SuperblockSize)+uint64(opts.MaxInodeCount)*uint64(DirentSize) > uint64(blockSize) {
		// table spans more than one block; that's fine for the engine,
		// but slot 0's root entry and the header always share block 0.
		log.Printf("dumbfs: format: dirent table spans multiple blocks (%d slots)", opts.MaxInodeCount)
	}

	total := dev.Geometry().TotalBlocks()
	var buffBk uint64
	scratchMode := RAMScratchMode
	usableBlocks := total
	if !opts.UseRAMScratch {
		if total < 2 {
			return nil, fmt.Errorf("%w: flash-scratch mode needs at least 2 blocks", ErrInval)
		}
		buffBk = uint64(total - 1)
		scratchMode = FlashScratchMode
		usableBlocks = total - 1
	}

	for bk := uint32(0); bk < total; bk++ {
		if err := dev.Erase(bk); err != nil {
			return nil, fmt.Errorf("%w: format erase block %d: %v", ErrIO, bk, err)
		}
	}

	dataOffset := dataRegionOffsetFor(opts.MaxInodeCount)
	usableBytes := uint64(usableBlocks) * uint64(blockSize)
	if uint64(dataOffset) > usableBytes {
		return nil, fmt.Errorf("%w: dirent table does not fit device", ErrInval)
	}

	sb := &Superblock{
		Magic:         Magic,
		InodeCount:    1,
		MaxInodeCount: opts.MaxInodeCount,
		MaxLen:        opts.MaxLen,
		BuffBk:        buffBk,
		FreeSpace:     0,
		ScratchMode:   scratchMode,
	}
	// Root's own dirent isn't allocated through Create's bump allocator:
	// its pos_start/len describe the dirent table itself (len is the
	// table's regular-file capacity), not a real data extent, so
	// free_space starts at 0 untouched by root's presence (spec §4.1).
	root := &Dirent{PosStart: sb.FreeSpace, Len: sb.MaxInodeCount - 1, Flags: DirFile}
	copy(root.Name[:], rootName)

	sbBytes, err := sb.MarshalBinary()
	if err != nil {
		return nil, err
	}
	rootBytes, err := root.MarshalBinary()
	if err != nil {
		return nil, err
	}
	image := make([]byte, blockSize)
	for i := range image {
		image[i] = 0xFF
	}
	copy(image, sbBytes)
	copy(image[SuperblockSize:], rootBytes)
	if err := dev.WriteAligned(0, image); err != nil {
		return nil, fmt.Errorf("%w: format write block 0: %v", ErrIO, err)
	}

	return mountFrom(dev, sb)
}

// Mount opens an existing volume, validating its superblock.
func Mount(dev flash.Device) (*Mount, error) {
	sb, err := readSuperblock(dev)
	if err != nil {
		return nil, err
	}
	return mountFrom(dev, sb)
}

func mountFrom(dev flash.Device, sb *Superblock) (*Mount, error) {
	var scratch Scratch
	if sb.ScratchMode == FlashScratchMode {
		scratch = NewFlashScratch(uint32(sb.BuffBk), int(dev.Geometry().UniformBlockSize()))
	} else {
		scratch = NewRAMScratch(int(dev.Geometry().UniformBlockSize()))
	}
	m := &Mount{
		ID:     uuid.NewString(),
		Dev:    dev,
		SB:     sb,
		engine: newWriteEngine(dev, scratch),
	}
	log.Printf("dumbfs: mount %s: inodes=%d/%d free=%d scratch_mode=%d", m.ID, sb.InodeCount, sb.MaxInodeCount, sb.FreeSpace, sb.ScratchMode)
	return m, nil
}

func dataRegionOffsetFor(maxInodeCount uint32) int64 {
	return direntTableOffset(maxInodeCount)
}

// Root returns the root directory's Inode handle.
func (m *Mount) Root() (*Inode, error) {
	d, err := readDirent(m, rootIndex)
	if err != nil {
		return nil, err
	}
	return &Inode{index: rootIndex, d: *d}, nil
}

// Lookup finds a live entry by name (spec §6 lookup).
func (m *Mount) Lookup(name string) (*Inode, error) {
	c := m.Iterate()
	for {
		ino, err := c.Next()
		if err != nil {
			return nil, err
		}
		if ino == nil {
			return nil, ErrNoEnt
		}
		if ino.Name() == name {
			return ino, nil
		}
	}
}

// Create allocates a new entry named name with the given type (spec §6
// create). Slot assignment is sequential, not a free-slot scan: DFS is
// append-only (no delete, spec §1 Non-goals), so slot inode_count is
// always the next untouched one. The data region extent is reserved in
// full here, eagerly: every new file reserves exactly max_len bytes
// regardless of its actual length (spec §4.4 Create, invariant I3), so
// a Write before any Truncate still lands inside a real extent.
func (m *Mount) Create(name string, typ FileType) (*Inode, error) {
	if typ.IsDir() {
		return nil, fmt.Errorf("%w: only one root directory is supported", ErrInval)
	}
	nameBytes, err := nameToBytes(name)
	if err != nil {
		return nil, err
	}
	if _, err := m.Lookup(name); err == nil {
		return nil, fmt.Errorf("%w: %q already exists", ErrInval, name)
	} else if err != ErrNoEnt {
		return nil, err
	}

	if m.SB.InodeCount >= m.SB.MaxInodeCount {
		return nil, ErrNoMem
	}
	slot := m.SB.InodeCount

	if uint64(m.SB.FreeSpace)+uint64(m.SB.MaxLen) > uint64(m.dataRegionSize()) {
		return nil, ErrNoMem
	}

	d := &Dirent{Name: nameBytes, PosStart: m.SB.FreeSpace, Len: 0, Flags: typ}
	if err := writeDirent(m, slot, d); err != nil {
		return nil, err
	}

	prevInodeCount, prevFreeSpace := m.SB.InodeCount, m.SB.FreeSpace
	m.SB.InodeCount++
	m.SB.FreeSpace += m.SB.MaxLen
	if err := writeSuperblock(m.engine, m.SB); err != nil {
		m.SB.InodeCount, m.SB.FreeSpace = prevInodeCount, prevFreeSpace
		return nil, err
	}
	return &Inode{index: slot, d: *d}, nil
}

// Truncate sets ino's length to newLen (spec §6 truncate). Truncate is
// grow-only: it never moves PosStart or allocates, since Create already
// reserved max_len bytes for this entry up front. DFS does not zero-fill
// new bytes, so after a grow Read returns whatever the extent holds past
// the old length: 0xFF where nothing has been written.
func (m *Mount) Truncate(ino *Inode, newLen uint32) error {
	if newLen > m.SB.MaxLen {
		return fmt.Errorf("%w: length %d exceeds max_len %d", ErrInval, newLen, m.SB.MaxLen)
	}
	d, err := readDirent(m, ino.index)
	if err != nil {
		return err
	}
	if newLen < d.Len {
		return fmt.Errorf("%w: truncate is grow-only, %d < current length %d", ErrInval, newLen, d.Len)
	}
	if newLen == d.Len {
		return nil
	}
	d.Len = newLen
	if err := writeDirent(m, ino.index, d); err != nil {
		return err
	}
	ino.d = *d
	return nil
}

func (m *Mount) dataRegionSize() uint32 {
	total := m.Dev.Geometry().TotalBlocks()
	if m.SB.ScratchMode == FlashScratchMode {
		total--
	}
	blockSize := m.Dev.Geometry().UniformBlockSize()
	return uint32(uint64(total)*uint64(blockSize) - uint64(dataRegionOffsetFor(m.SB.MaxInodeCount)))
}

// Read copies up to len(buf) bytes of ino's content starting at pos into
// buf, returning the number of bytes actually read. It clips to
// min(len(buf), file_length-file_pos); pos past the current length is an
// error rather than a silent short read (spec §6 read).
func (m *Mount) Read(ino *Inode, pos uint32, buf []byte) (int, error) {
	d, err := readDirent(m, ino.index)
	if err != nil {
		return 0, err
	}
	if pos > d.Len {
		return 0, fmt.Errorf("%w: read position %d past length %d", ErrInval, pos, d.Len)
	}
	n := d.Len - pos
	if uint32(len(buf)) < n {
		n = uint32(len(buf))
	}
	off := dataRegionOffsetFor(m.SB.MaxInodeCount) + int64(d.PosStart) + int64(pos)
	if err := m.Dev.ReadAligned(off, buf[:n]); err != nil {
		return 0, fmt.Errorf("%w: read: %v", ErrIO, err)
	}
	return int(n), nil
}

// Write emulates an in-place write of buf at byte offset pos within
// ino's content (spec §6 write), going through the buffered-rewrite
// engine so neighboring file data on the same erase block survives. It
// clips to min(len(buf), max_len-pos) — independent of the entry's
// current Len, which Write never consults or extends, since every entry
// already has max_len bytes reserved from Create. A non-positive clip is
// an error.
func (m *Mount) Write(ino *Inode, pos uint32, buf []byte) (int, error) {
	if pos > m.SB.MaxLen {
		return 0, fmt.Errorf("%w: write position %d exceeds max_len %d", ErrInval, pos, m.SB.MaxLen)
	}
	n := m.SB.MaxLen - pos
	if uint32(len(buf)) < n {
		n = uint32(len(buf))
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: write at %d clips to zero bytes", ErrInval, pos)
	}
	d, err := readDirent(m, ino.index)
	if err != nil {
		return 0, err
	}
	off := dataRegionOffsetFor(m.SB.MaxInodeCount) + int64(d.PosStart) + int64(pos)
	if err := m.engine.BufferedWrite(off, buf[:n]); err != nil {
		return 0, err
	}
	return int(n), nil
}
