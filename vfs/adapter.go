package vfs

import "github.com/dumbfs/dumbfs"

// MountAdapter wraps a *dumbfs.Mount as a FileSystem, translating
// between dumbfs.Inode and the narrower Entry interface host adapters
// see.
type MountAdapter struct {
	M *dumbfs.Mount
}

// Wrap adapts a mounted volume to the FileSystem interface.
func Wrap(m *dumbfs.Mount) *MountAdapter { return &MountAdapter{M: m} }

func (a *MountAdapter) Lookup(name string) (Entry, error) {
	ino, err := a.M.Lookup(name)
	if err != nil {
		return nil, err
	}
	return ino, nil
}

func (a *MountAdapter) Create(name string) (Entry, error) {
	ino, err := a.M.Create(name, dumbfs.RegularFile)
	if err != nil {
		return nil, err
	}
	return ino, nil
}

func (a *MountAdapter) Iterate() ([]Entry, error) {
	var out []Entry
	c := a.M.Iterate()
	for {
		ino, err := c.Next()
		if err != nil {
			return nil, err
		}
		if ino == nil {
			return out, nil
		}
		out = append(out, ino)
	}
}

func (a *MountAdapter) Truncate(e Entry, newLen uint32) error {
	ino, err := a.resolve(e)
	if err != nil {
		return err
	}
	return a.M.Truncate(ino, newLen)
}

func (a *MountAdapter) Read(e Entry, pos uint32, buf []byte) (int, error) {
	ino, err := a.resolve(e)
	if err != nil {
		return 0, err
	}
	return a.M.Read(ino, pos, buf)
}

func (a *MountAdapter) Write(e Entry, pos uint32, buf []byte) (int, error) {
	ino, err := a.resolve(e)
	if err != nil {
		return 0, err
	}
	return a.M.Write(ino, pos, buf)
}

// resolve recovers the concrete *dumbfs.Inode behind an Entry. Entry
// values handed back by this adapter are always *dumbfs.Inode in
// practice, but callers only see the narrow interface.
func (a *MountAdapter) resolve(e Entry) (*dumbfs.Inode, error) {
	ino, ok := e.(*dumbfs.Inode)
	if !ok {
		return nil, dumbfs.ErrInval
	}
	return ino, nil
}
