package dumbfs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dumbfs/dumbfs/flash"
)

const testBlockSize = 256

func newTestDevice(t *testing.T, blocks uint32) flash.Device {
	t.Helper()
	geom := flash.Geometry{{BlockSize: testBlockSize, Blocks: blocks}}
	return flash.NewMemDevice(64, geom)
}

// scratchFactories lets every BufferedWrite property run against both
// scratch modes, since they must behave identically from a caller's
// point of view (spec §4.2: the two modes are an implementation choice,
// not an observable one).
func scratchFactories(blocks uint32) map[string]func() Scratch {
	return map[string]func() Scratch{
		"ram":   func() Scratch { return NewRAMScratch(testBlockSize) },
		"flash": func() Scratch { return NewFlashScratch(blocks-1, testBlockSize) },
	}
}

func fillDevice(t *testing.T, dev flash.Device, pattern byte) {
	t.Helper()
	buf := bytes.Repeat([]byte{pattern}, testBlockSize)
	for bk := uint32(0); bk < dev.Geometry().TotalBlocks(); bk++ {
		require.NoError(t, dev.Erase(bk))
		require.NoError(t, dev.WriteAligned(int64(bk)*testBlockSize, buf))
	}
}

func TestBufferedWriteSingleBlockPreservesNeighbors(t *testing.T) {
	for name, factory := range scratchFactories(4) {
		name, factory := name, factory
		t.Run(name, func(t *testing.T) {
			dev := newTestDevice(t, 4)
			fillDevice(t, dev, 0xAA)
			e := newWriteEngine(dev, factory())

			payload := []byte("hello")
			require.NoError(t, e.BufferedWrite(testBlockSize+10, payload))

			got := make([]byte, testBlockSize)
			require.NoError(t, dev.ReadAligned(testBlockSize, got))

			require.True(t, bytes.Equal(got[:10], bytes.Repeat([]byte{0xAA}, 10)), "prefix disturbed")
			require.Equal(t, payload, got[10:15])
			require.True(t, bytes.Equal(got[15:], bytes.Repeat([]byte{0xAA}, testBlockSize-15)), "suffix disturbed")
		})
	}
}

func TestBufferedWriteSingleBlockFullOverwrite(t *testing.T) {
	for name, factory := range scratchFactories(4) {
		name, factory := name, factory
		t.Run(name, func(t *testing.T) {
			dev := newTestDevice(t, 4)
			fillDevice(t, dev, 0xAA)
			e := newWriteEngine(dev, factory())

			payload := bytes.Repeat([]byte{0x42}, testBlockSize)
			require.NoError(t, e.BufferedWrite(0, payload))

			got := make([]byte, testBlockSize)
			require.NoError(t, dev.ReadAligned(0, got))
			require.Equal(t, payload, got)
		})
	}
}

func TestBufferedWriteMultiBlockSpansPreserveEdges(t *testing.T) {
	for name, factory := range scratchFactories(5) {
		name, factory := name, factory
		t.Run(name, func(t *testing.T) {
			dev := newTestDevice(t, 5)
			fillDevice(t, dev, 0xAA)
			e := newWriteEngine(dev, factory())

			pos := int64(testBlockSize - 20) // starts in block 0, crosses into block 1, ends in block 2
			size := testBlockSize + 40
			payload := bytes.Repeat([]byte{0x5A}, size)
			require.NoError(t, e.BufferedWrite(pos, payload))

			full := make([]byte, testBlockSize*3)
			require.NoError(t, dev.ReadAligned(0, full))

			// prefix of block 0 untouched
			require.True(t, bytes.Equal(full[:testBlockSize-20], bytes.Repeat([]byte{0xAA}, testBlockSize-20)))
			// the written region matches payload
			require.True(t, bytes.Equal(full[testBlockSize-20:testBlockSize-20+size], payload))
			// suffix after the written region untouched
			tailStart := testBlockSize - 20 + size
			require.True(t, bytes.Equal(full[tailStart:], bytes.Repeat([]byte{0xAA}, len(full)-tailStart)))
		})
	}
}

func TestBufferedWriteZeroLengthIsNoop(t *testing.T) {
	for name, factory := range scratchFactories(3) {
		name, factory := name, factory
		t.Run(name, func(t *testing.T) {
			dev := newTestDevice(t, 3)
			fillDevice(t, dev, 0x11)
			e := newWriteEngine(dev, factory())

			require.NoError(t, e.BufferedWrite(5, nil))

			got := make([]byte, testBlockSize)
			require.NoError(t, dev.ReadAligned(0, got))
			require.True(t, bytes.Equal(got, bytes.Repeat([]byte{0x11}, testBlockSize)))
		})
	}
}

func TestFlashScratchPublishesIntoDataBlock(t *testing.T) {
	dev := newTestDevice(t, 4)
	fillDevice(t, dev, 0xAA)
	scratch := NewFlashScratch(3, testBlockSize)
	e := newWriteEngine(dev, scratch)

	require.NoError(t, e.BufferedWrite(0, []byte("x")))

	// the write is staged in the reserved scratch block (index 3) and
	// lands in data block 0 only through publish's CopyBlock; block 3
	// itself is free to contain whatever the last publish left there.
	dataBlock := make([]byte, testBlockSize)
	require.NoError(t, dev.ReadAligned(0, dataBlock))
	require.Equal(t, byte('x'), dataBlock[0])
}
