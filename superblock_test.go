package dumbfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuperblockRoundTrip(t *testing.T) {
	sb := &Superblock{
		Magic:         Magic,
		InodeCount:    3,
		MaxInodeCount: 64,
		MaxLen:        1 << 20,
		BuffBk:        255,
		FreeSpace:     4096,
		ScratchMode:   FlashScratchMode,
	}
	buf, err := sb.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, SuperblockSize)

	got := new(Superblock)
	require.NoError(t, got.UnmarshalBinary(buf))
	require.Equal(t, sb, got)
}

func TestSuperblockValidateBadMagic(t *testing.T) {
	sb := &Superblock{Magic: [2]byte{0, 0}}
	require.ErrorIs(t, sb.Validate(), ErrBadMagic)
}

func TestSuperblockValidateInodeCountOverflow(t *testing.T) {
	sb := &Superblock{Magic: Magic, InodeCount: 5, MaxInodeCount: 4}
	require.ErrorIs(t, sb.Validate(), ErrInval)
}
