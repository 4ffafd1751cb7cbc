package dumbfs

import "errors"

// Package-specific error variables that can be used with errors.Is() for error handling.
// These map onto the four error kinds DFS distinguishes at its public boundary.
var (
	// ErrNoEnt is returned when lookup finds no live entry with the given
	// name. Reading an empty dirent slot is not reported as an error.
	ErrNoEnt = errors.New("dumbfs: no such entry")

	// ErrNoMem is returned by Create when the inode table is full.
	ErrNoMem = errors.New("dumbfs: inode table full")

	// ErrInval is returned by Truncate with an out-of-range length, by
	// Read when the position is past the entry's length, or by Write when
	// the clipped length is zero.
	ErrInval = errors.New("dumbfs: invalid argument")

	// ErrIO is returned when a flash.Device call fails inside the
	// buffered-rewrite engine or a metadata path.
	ErrIO = errors.New("dumbfs: flash i/o error")

	// ErrBadMagic is returned by Mount when the superblock magic does not
	// match. Mount does not format the device in that case.
	ErrBadMagic = errors.New("dumbfs: bad superblock magic")
)
