package dumbfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// nameLen is the fixed width of a dirent's Name field in bytes,
// including room for a trailing NUL (spec §3: dirents are fixed-size
// records, no inline variable-length names).
const nameLen = 28

// Dirent is one fixed-size entry of the dirent table (spec §3). PosStart
// and Len describe the entry's byte range within the data region;
// Flags.IsDir distinguishes the root directory's own entry from regular
// files.
type Dirent struct {
	Name     [nameLen]byte
	PosStart uint32
	Len      uint32
	Flags    FileType
}

// DirentSize is the fixed on-flash size of a Dirent.
var DirentSize = binarySize(Dirent{})

// erasedWord is what the first 4 bytes of Name read back as on a slot
// that format's block erase left untouched: flash erases to all-ones,
// and Create never writes past inode_count, so every unused slot still
// reads this way (spec §9c).
const erasedWord uint32 = 0xFFFFFFFF

// free reports whether d's slot holds no live entry. DFS's dirent table
// scan (iterate, lookup) and a single dirent read (read_dirent) each
// define "empty" their own way, and spec §9c keeps both checks rather
// than folding them into one: the raw first 4 bytes against the erased
// word, independent of the name[0]=='\0' check a zero-length name would
// also produce.
func (d *Dirent) free() bool {
	return binary.LittleEndian.Uint32(d.Name[:4]) == erasedWord || d.Name[0] == 0
}

func nameToBytes(name string) ([nameLen]byte, error) {
	var out [nameLen]byte
	if len(name) == 0 || len(name) >= nameLen {
		return out, fmt.Errorf("%w: name length must be in [1,%d)", ErrInval, nameLen)
	}
	copy(out[:], name)
	return out, nil
}

func bytesToName(b [nameLen]byte) string {
	n := bytes.IndexByte(b[:], 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}

// MarshalBinary serializes d in flash byte order.
func (d *Dirent) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, d.Name); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, d.PosStart); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, d.Len); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, d.Flags); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses a Dirent out of data, which must be at least
// DirentSize bytes.
func (d *Dirent) UnmarshalBinary(data []byte) error {
	if len(data) < DirentSize {
		return fmt.Errorf("%w: dirent needs %d bytes, got %d", ErrInval, DirentSize, len(data))
	}
	r := bytes.NewReader(data)
	for _, p := range []interface{}{&d.Name, &d.PosStart, &d.Len, &d.Flags} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return fmt.Errorf("%w: unmarshal dirent: %v", ErrIO, err)
		}
	}
	return nil
}

// direntTableOffset is the byte offset, relative to device start, of
// dirent slot index.
func direntTableOffset(index uint32) int64 {
	return int64(SuperblockSize) + int64(index)*int64(DirentSize)
}

func readDirent(m *Mount, index uint32) (*Dirent, error) {
	buf := make([]byte, DirentSize)
	if err := m.Dev.ReadAligned(direntTableOffset(index), buf); err != nil {
		return nil, fmt.Errorf("%w: read dirent %d: %v", ErrIO, index, err)
	}
	d := new(Dirent)
	if err := d.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return d, nil
}

func writeDirent(m *Mount, index uint32, d *Dirent) error {
	buf, err := d.MarshalBinary()
	if err != nil {
		return err
	}
	return m.engine.BufferedWrite(direntTableOffset(index), buf)
}
