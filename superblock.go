package dumbfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/dumbfs/dumbfs/flash"
)

// Magic is the two-byte marker that opens every DFS superblock (spec §3).
var Magic = [2]byte{0x0D, 0xF5}

// Superblock is the on-flash sb_info block (spec §3): it lives in block 0
// and is the only structure DFS trusts without first validating Magic.
//
// Fields are ordered to match their on-flash layout; Marshal/Unmarshal
// walk them by reflection the same way the teacher's super.go does for
// its own superblock, so adding a field here only means adding it to the
// struct, not touching the (de)serialization code.
type Superblock struct {
	Magic         [2]byte
	InodeCount    uint32 // live dirent count
	MaxInodeCount uint32 // capacity of the dirent table
	MaxLen        uint32 // per-file length ceiling (min_file_size, spec §9)
	BuffBk        uint64 // block index of the scratch block (flash-scratch mode only)
	FreeSpace     uint32 // offset of next unused data extent, relative to the data region's start; monotone non-decreasing
	ScratchMode   uint32 // RAMScratchMode or FlashScratchMode
}

// Scratch modes recorded in Superblock.ScratchMode, so a re-mount picks
// the same buffered-rewrite strategy the volume was formatted with
// without needing a side-channel config file.
const (
	RAMScratchMode   uint32 = 0
	FlashScratchMode uint32 = 1
)

// binarySize returns the on-flash footprint of a fixed-layout struct such
// as Superblock or Dirent, derived the
// same way the teacher computes a struct's fixed size: by summing
// binary.Size over every exported field via reflection, so it never
// drifts out of sync with Marshal/Unmarshal.
func binarySize(v interface{}) int {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	total := 0
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Type().Field(i)
		if f.PkgPath != "" {
			continue // unexported, not part of the wire format
		}
		total += binary.Size(rv.Field(i).Interface())
	}
	return total
}

// SuperblockSize is the fixed on-flash size of a Superblock.
var SuperblockSize = binarySize(Superblock{})

// MarshalBinary serializes sb in flash byte order (little-endian).
func (sb *Superblock) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	rv := reflect.ValueOf(sb).Elem()
	for i := 0; i < rv.NumField(); i++ {
		if rv.Type().Field(i).PkgPath != "" {
			continue
		}
		if err := binary.Write(buf, binary.LittleEndian, rv.Field(i).Interface()); err != nil {
			return nil, fmt.Errorf("dumbfs: marshal superblock: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses a Superblock out of data, which must be at least
// SuperblockSize bytes. It does not validate Magic; call Validate for
// that.
func (sb *Superblock) UnmarshalBinary(data []byte) error {
	if len(data) < SuperblockSize {
		return fmt.Errorf("%w: superblock needs %d bytes, got %d", ErrInval, SuperblockSize, len(data))
	}
	r := bytes.NewReader(data)
	rv := reflect.ValueOf(sb).Elem()
	for i := 0; i < rv.NumField(); i++ {
		if rv.Type().Field(i).PkgPath != "" {
			continue
		}
		if err := binary.Read(r, binary.LittleEndian, rv.Field(i).Addr().Interface()); err != nil {
			return fmt.Errorf("%w: unmarshal superblock: %v", ErrIO, err)
		}
	}
	return nil
}

// Validate checks Magic and the internal consistency of the header
// fields loaded from flash.
func (sb *Superblock) Validate() error {
	if sb.Magic != Magic {
		return ErrBadMagic
	}
	if sb.InodeCount > sb.MaxInodeCount {
		return fmt.Errorf("%w: inode_count %d exceeds max_inode_count %d", ErrInval, sb.InodeCount, sb.MaxInodeCount)
	}
	return nil
}

// readSuperblock loads and validates the superblock from block 0.
func readSuperblock(dev flash.Device) (*Superblock, error) {
	blockSize := dev.Geometry().UniformBlockSize()
	buf := make([]byte, blockSize)
	if err := dev.ReadAligned(0, buf); err != nil {
		return nil, fmt.Errorf("%w: read superblock: %v", ErrIO, err)
	}
	sb := new(Superblock)
	if err := sb.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	if err := sb.Validate(); err != nil {
		return nil, err
	}
	return sb, nil
}

// writeSuperblock persists sb through the buffered-rewrite engine, since
// block 0 may already hold live dirents packed after the header and a
// superblock update must not disturb them.
func writeSuperblock(e *writeEngine, sb *Superblock) error {
	buf, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	return e.BufferedWrite(0, buf)
}
