//go:build linux

package flash

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BlockDevice is a Device backed by a real raw block device or a
// regular file standing in for one (e.g. an MTD character device, or a
// flat image file used for development). It opens the backing path with
// O_DIRECT when possible so the host page cache cannot silently reorder
// writes behind the buffered-rewrite engine's publish ordering (spec §5).
//
// Grounded on distr1-distri's cmd/minitrd/blkid.go (raw, fixed-offset
// reads against a block device via a plain file descriptor) and on the
// teacher's transitive golang.org/x/sys dependency, here used directly
// instead of only through go-fuse.
type BlockDevice struct {
	f        *os.File
	pageSize int
	geom     Geometry
}

// OpenBlockDevice opens path as a Device with the given geometry. If the
// O_DIRECT open fails (e.g. path is a plain file on a filesystem that
// does not support it), it falls back to a buffered open; this matches
// real-world flash driver shims that probe for O_DIRECT support.
func OpenBlockDevice(path string, geom Geometry) (*BlockDevice, error) {
	pageSize := unix.Getpagesize()

	f, err := os.OpenFile(path, os.O_RDWR|unix.O_DIRECT, 0)
	if err != nil {
		f, err = os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("flash: open %s: %w", path, err)
		}
	}

	return &BlockDevice{f: f, pageSize: pageSize, geom: geom}, nil
}

func (d *BlockDevice) Close() error { return d.f.Close() }

func (d *BlockDevice) PageSize() int      { return d.pageSize }
func (d *BlockDevice) Geometry() Geometry { return d.geom }

func (d *BlockDevice) Erase(block uint32) error {
	bs := int64(d.geom.UniformBlockSize())
	if block >= d.geom.TotalBlocks() {
		return ErrOutOfRange
	}
	buf := make([]byte, bs)
	for i := range buf {
		buf[i] = 0xFF
	}
	_, err := d.f.WriteAt(buf, int64(block)*bs)
	return err
}

func (d *BlockDevice) ReadAligned(byteOff int64, dst []byte) error {
	_, err := d.f.ReadAt(dst, byteOff)
	return err
}

func (d *BlockDevice) WriteAligned(byteOff int64, src []byte) error {
	if byteOff%int64(d.pageSize) != 0 || len(src)%d.pageSize != 0 {
		return ErrNotAligned
	}
	_, err := d.f.WriteAt(src, byteOff)
	return err
}

func (d *BlockDevice) CopyAligned(dstOff, srcOff int64, length int) error {
	if dstOff%int64(d.pageSize) != 0 {
		return ErrNotAligned
	}
	buf := make([]byte, length)
	if _, err := d.f.ReadAt(buf, srcOff); err != nil {
		return err
	}
	_, err := d.f.WriteAt(buf, dstOff)
	return err
}

func (d *BlockDevice) CopyBlock(dstBlock, srcBlock uint32) error {
	bs := int64(d.geom.UniformBlockSize())
	buf := make([]byte, bs)
	if _, err := d.f.ReadAt(buf, int64(srcBlock)*bs); err != nil {
		return err
	}
	_, err := d.f.WriteAt(buf, int64(dstBlock)*bs)
	return err
}
