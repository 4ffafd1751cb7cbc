package dumbfs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dumbfs/dumbfs/flash"
)

func newFormattedMount(t *testing.T, opts FormatOptions, blocks uint32) *Mount {
	t.Helper()
	geom := flash.Geometry{{BlockSize: 512, Blocks: blocks}}
	dev := flash.NewMemDevice(64, geom)
	if opts.MaxInodeCount == 0 {
		opts.MaxInodeCount = 8
	}
	if opts.MaxLen == 0 {
		opts.MaxLen = 128
	}
	m, err := Format(dev, opts)
	require.NoError(t, err)
	return m
}

func TestFormatCreatesRoot(t *testing.T) {
	m := newFormattedMount(t, FormatOptions{UseRAMScratch: true}, 4)
	root, err := m.Root()
	require.NoError(t, err)
	require.Equal(t, "/", root.Name())
	require.True(t, root.IsDir())
	require.EqualValues(t, 1, m.SB.InodeCount)
}

func TestCreateLookupIterate(t *testing.T) {
	m := newFormattedMount(t, FormatOptions{UseRAMScratch: true}, 4)

	_, err := m.Create("a.txt", RegularFile)
	require.NoError(t, err)
	_, err = m.Create("b.txt", RegularFile)
	require.NoError(t, err)

	ino, err := m.Lookup("a.txt")
	require.NoError(t, err)
	require.Equal(t, "a.txt", ino.Name())

	_, err = m.Lookup("missing.txt")
	require.ErrorIs(t, err, ErrNoEnt)

	names := map[string]bool{}
	c := m.Iterate()
	for {
		ino, err := c.Next()
		require.NoError(t, err)
		if ino == nil {
			break
		}
		names[ino.Name()] = true
	}
	require.False(t, names["/"], "iterate must skip root, which is reached only via Root()")
	require.True(t, names["a.txt"])
	require.True(t, names["b.txt"])
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	m := newFormattedMount(t, FormatOptions{UseRAMScratch: true}, 4)
	_, err := m.Create("dup.txt", RegularFile)
	require.NoError(t, err)
	_, err = m.Create("dup.txt", RegularFile)
	require.ErrorIs(t, err, ErrInval)
}

func TestCreateExhaustsInodeTable(t *testing.T) {
	m := newFormattedMount(t, FormatOptions{MaxInodeCount: 2, UseRAMScratch: true}, 4)
	// slot 0 is root; Create assigns slot 1 (inode_count) sequentially,
	// not via a free-slot scan, since DFS never deletes.
	_, err := m.Create("only.txt", RegularFile)
	require.NoError(t, err)
	_, err = m.Create("overflow.txt", RegularFile)
	require.ErrorIs(t, err, ErrNoMem)
}

func TestWriteThenTruncateThenReadRoundTrip(t *testing.T) {
	for _, ram := range []bool{true, false} {
		ram := ram
		t.Run(map[bool]string{true: "ram", false: "flash"}[ram], func(t *testing.T) {
			m := newFormattedMount(t, FormatOptions{UseRAMScratch: ram}, 6)
			ino, err := m.Create("data.bin", RegularFile)
			require.NoError(t, err)

			// Create reserves the full extent up front, so Write works
			// on a freshly-created (Len==0) entry, before any Truncate.
			payload := []byte("the quick brown fox")
			n, err := m.Write(ino, 0, payload)
			require.NoError(t, err)
			require.Equal(t, len(payload), n)

			require.NoError(t, m.Truncate(ino, uint32(len(payload))))

			got := make([]byte, len(payload))
			n, err = m.Read(ino, 0, got)
			require.NoError(t, err)
			require.Equal(t, len(payload), n)
			require.True(t, bytes.Equal(payload, got))
		})
	}
}

func TestTruncateIsGrowOnly(t *testing.T) {
	m := newFormattedMount(t, FormatOptions{UseRAMScratch: true}, 4)
	ino, err := m.Create("grow.bin", RegularFile)
	require.NoError(t, err)

	require.NoError(t, m.Truncate(ino, 10))
	require.NoError(t, m.Truncate(ino, 10)) // no-op, same length
	err = m.Truncate(ino, 4)
	require.ErrorIs(t, err, ErrInval)

	err = m.Truncate(ino, m.SB.MaxLen+1)
	require.ErrorIs(t, err, ErrInval)
}

func TestWritePartialThenReadShortAtEOF(t *testing.T) {
	m := newFormattedMount(t, FormatOptions{UseRAMScratch: true}, 4)
	ino, err := m.Create("partial.bin", RegularFile)
	require.NoError(t, err)
	require.NoError(t, m.Truncate(ino, 10))

	_, err = m.Write(ino, 2, []byte("XY"))
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := m.Read(ino, 8, buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestWriteClipsToMaxLen(t *testing.T) {
	m := newFormattedMount(t, FormatOptions{UseRAMScratch: true}, 4)
	ino, err := m.Create("short.bin", RegularFile)
	require.NoError(t, err)

	// Write never consults Len (still 0 here); it clips only against
	// max_len, independent of the entry's current length.
	payload := make([]byte, m.SB.MaxLen+50)
	n, err := m.Write(ino, 0, payload)
	require.NoError(t, err)
	require.EqualValues(t, m.SB.MaxLen, n)

	_, err = m.Write(ino, m.SB.MaxLen, []byte("x"))
	require.ErrorIs(t, err, ErrInval)
}

func TestRemountPreservesState(t *testing.T) {
	geom := flash.Geometry{{BlockSize: 512, Blocks: 4}}
	dev := flash.NewMemDevice(64, geom)
	m, err := Format(dev, FormatOptions{MaxInodeCount: 8, MaxLen: 128, UseRAMScratch: true})
	require.NoError(t, err)
	ino, err := m.Create("persisted.txt", RegularFile)
	require.NoError(t, err)
	require.NoError(t, m.Truncate(ino, 5))
	_, err = m.Write(ino, 0, []byte("abcde"))
	require.NoError(t, err)

	m2, err := Mount(dev)
	require.NoError(t, err)
	ino2, err := m2.Lookup("persisted.txt")
	require.NoError(t, err)
	require.EqualValues(t, 5, ino2.Size())

	got := make([]byte, 5)
	_, err = m2.Read(ino2, 0, got)
	require.NoError(t, err)
	require.Equal(t, "abcde", string(got))
}
