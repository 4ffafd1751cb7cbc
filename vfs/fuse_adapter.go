//go:build fuse

package vfs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/dumbfs/dumbfs"
)

// fuseRoot is the single FUSE inode standing in for DumbFS's one flat
// directory (subdirectories are a non-goal, spec §1). It satisfies
// fs.NodeLookuper and fs.NodeReaddirer against the files it holds via
// MountAdapter, the same shape the teacher's own FUSE binding uses for
// its directory nodes, minus the inode-table indirection squashfs needs
// for its compressed tree.
type fuseRoot struct {
	fs.Inode
	vol *MountAdapter
}

var (
	_ fs.NodeLookuper  = (*fuseRoot)(nil)
	_ fs.NodeReaddirer = (*fuseRoot)(nil)
)

// NewFuseRoot builds the root of a go-fuse mount tree for vol.
func NewFuseRoot(vol *MountAdapter) fs.InodeEmbedder {
	return &fuseRoot{vol: vol}
}

func (r *fuseRoot) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	e, err := r.vol.Lookup(name)
	if err != nil {
		return nil, entToErrno(err)
	}
	out.Size = uint64(e.Size())
	return r.NewInode(ctx, &fuseFile{vol: r.vol, entry: e}, fs.StableAttr{}), fs.OK
}

func (r *fuseRoot) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := r.vol.Iterate()
	if err != nil {
		return nil, entToErrno(err)
	}
	list := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		list = append(list, fuse.DirEntry{Name: e.Name(), Mode: fuse.S_IFREG})
	}
	return fs.NewListDirStream(list), fs.OK
}

// fuseFile is a regular file node, backed by one dumbfs.Inode via the
// Entry interface.
type fuseFile struct {
	fs.Inode
	vol   *MountAdapter
	entry Entry
}

var (
	_ fs.NodeReader    = (*fuseFile)(nil)
	_ fs.NodeWriter    = (*fuseFile)(nil)
	_ fs.NodeSetattrer = (*fuseFile)(nil)
	_ fs.NodeGetattrer = (*fuseFile)(nil)
)

func (f *fuseFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := f.vol.Read(f.entry, uint32(off), dest)
	if err != nil {
		return nil, entToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), fs.OK
}

func (f *fuseFile) Write(ctx context.Context, fh fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := f.vol.Write(f.entry, uint32(off), data)
	if err != nil {
		return 0, entToErrno(err)
	}
	return uint32(n), fs.OK
}

func (f *fuseFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Size = uint64(f.entry.Size())
	return fs.OK
}

func (f *fuseFile) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if sz, ok := in.GetSize(); ok {
		if err := f.vol.Truncate(f.entry, uint32(sz)); err != nil {
			return entToErrno(err)
		}
	}
	out.Size = uint64(f.entry.Size())
	return fs.OK
}

func entToErrno(err error) syscall.Errno {
	switch {
	case err == dumbfs.ErrNoEnt:
		return syscall.ENOENT
	case err == dumbfs.ErrNoMem:
		return syscall.ENOSPC
	case err == dumbfs.ErrInval:
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}
