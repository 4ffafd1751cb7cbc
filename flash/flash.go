// Package flash defines the Flash facade (spec §6): the narrow contract a
// host driver must satisfy for DumbFS to mount on top of it. Nothing in
// this package knows about superblocks, dirents or inodes; it only knows
// about erasing and reading/writing bytes at block and page granularity.
package flash

import "errors"

// ErrOutOfRange is returned when a call addresses a block or byte range
// that does not exist on the device.
var ErrOutOfRange = errors.New("flash: offset out of range")

// ErrNotAligned is returned by WriteAligned when byteOff or len does not
// respect the device's page alignment requirement.
var ErrNotAligned = errors.New("flash: write is not page-aligned")

// Region describes one contiguous run of equally-sized erase blocks, the
// shape real flash geometry tables use (spec §6: "array of
// {block_size_count, blocks} pairs").
type Region struct {
	BlockSize uint32 // bytes per erase block in this region
	Blocks    uint32 // number of blocks in this region
}

// Geometry is the full block-size layout of a device. DumbFS's own
// buffered-rewrite engine only ever operates against a uniform first
// region; mixed-geometry devices are a non-goal of the engine, but the
// facade itself should still describe real hardware faithfully.
type Geometry []Region

// TotalBlocks sums every region's block count.
func (g Geometry) TotalBlocks() uint32 {
	var n uint32
	for _, r := range g {
		n += r.Blocks
	}
	return n
}

// UniformBlockSize returns the block size of the first region, which is
// the only shape DumbFS itself supports.
func (g Geometry) UniformBlockSize() uint32 {
	if len(g) == 0 {
		return 0
	}
	return g[0].BlockSize
}

// Device is the external Flash facade (spec §6). It is implemented by the
// host driver; DumbFS never assumes anything about the underlying medium
// beyond this contract: erase-before-write at block granularity, and
// page-aligned writes.
type Device interface {
	// PageSize returns the page size in bytes.
	PageSize() int
	// Geometry returns the device's block-size layout.
	Geometry() Geometry

	// Erase erases the given block index, resetting it to the
	// post-erase default (all bits 1, i.e. 0xFF bytes).
	Erase(block uint32) error

	// ReadAligned reads len(dst) bytes starting at byteOff. Unlike
	// WriteAligned, reads need not be page-aligned.
	ReadAligned(byteOff int64, dst []byte) error

	// WriteAligned writes src at byteOff. byteOff must be a multiple of
	// PageSize() and len(src) must be a multiple of PageSize().
	WriteAligned(byteOff int64, src []byte) error

	// CopyAligned copies len bytes from srcOff to dstOff within the
	// device, respecting the same alignment rule as WriteAligned for the
	// destination.
	CopyAligned(dstOff, srcOff int64, len int) error

	// CopyBlock copies the entire contents of srcBlock onto dstBlock.
	// dstBlock must already be erased by the caller.
	CopyBlock(dstBlock, srcBlock uint32) error
}
