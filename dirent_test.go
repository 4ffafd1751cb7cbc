package dumbfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirentRoundTrip(t *testing.T) {
	name, err := nameToBytes("notes.txt")
	require.NoError(t, err)
	d := &Dirent{Name: name, PosStart: 128, Len: 64, Flags: RegularFile}

	buf, err := d.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, DirentSize)

	got := new(Dirent)
	require.NoError(t, got.UnmarshalBinary(buf))
	require.Equal(t, d, got)
	require.Equal(t, "notes.txt", bytesToName(got.Name))
}

func TestDirentFreeSentinels(t *testing.T) {
	// Never-used slot: flash erase leaves the whole Name field 0xFF, so
	// the raw first-4-bytes check catches it.
	var neverUsed Dirent
	for i := range neverUsed.Name {
		neverUsed.Name[i] = 0xFF
	}
	require.True(t, neverUsed.free())

	// A dirent with an explicit zero-length name is empty too, through
	// the independent name[0]=='\0' check, not the 4-byte one.
	var zeroName Dirent
	require.True(t, zeroName.free())

	live := Dirent{Name: [nameLen]byte{'a'}}
	require.False(t, live.free())
}

func TestNameToBytesRejectsEmptyAndOverlong(t *testing.T) {
	_, err := nameToBytes("")
	require.ErrorIs(t, err, ErrInval)

	long := make([]byte, nameLen)
	for i := range long {
		long[i] = 'a'
	}
	_, err = nameToBytes(string(long))
	require.ErrorIs(t, err, ErrInval)
}
