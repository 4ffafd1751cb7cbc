// Command dfsutil formats, inspects and manipulates DumbFS volume
// images from the host shell, the same role the teacher's cmd/sqfs
// plays for squashfs images: a thin cobra-driven wrapper over the
// library package, operating on a flat image file standing in for a
// real flash device.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dumbfs/dumbfs"
	"github.com/dumbfs/dumbfs/config"
	"github.com/dumbfs/dumbfs/flash"
)

var v = viper.New()

func main() {
	root := &cobra.Command{
		Use:   "dfsutil",
		Short: "inspect and manipulate DumbFS volume images",
	}
	config.BindFlags(root.PersistentFlags(), v)
	root.AddCommand(formatCmd(), lsCmd(), catCmd(), createCmd(), writeCmd(), truncateCmd(), infoCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func openImage(path string, cfg config.Config) (*flash.MemDevice, error) {
	geom := flash.Geometry{{BlockSize: cfg.BlockSize, Blocks: cfg.Blocks}}
	dev := flash.NewMemDevice(cfg.PageSize, geom)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dev, nil
		}
		return nil, err
	}
	if err := dev.WriteAligned(0, data); err != nil {
		return nil, fmt.Errorf("dfsutil: loading %s: %w", path, err)
	}
	return dev, nil
}

func saveImage(path string, dev *flash.MemDevice, cfg config.Config) error {
	buf := make([]byte, int(cfg.Blocks)*int(cfg.BlockSize))
	if err := dev.ReadAligned(0, buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func loadConfig() (config.Config, error) {
	return config.Load(v)
}

func formatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format <image>",
		Short: "create a new DumbFS volume image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			geom := flash.Geometry{{BlockSize: cfg.BlockSize, Blocks: cfg.Blocks}}
			dev := flash.NewMemDevice(cfg.PageSize, geom)
			_, err = dumbfs.Format(dev, dumbfs.FormatOptions{
				MaxInodeCount: cfg.MaxInodeCount,
				MaxLen:        cfg.MinimumFileSize,
				UseRAMScratch: cfg.UseRAMAsCache,
			})
			if err != nil {
				return err
			}
			return saveImage(args[0], dev, cfg)
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "print superblock contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dev, err := openImage(args[0], cfg)
			if err != nil {
				return err
			}
			m, err := dumbfs.Mount(dev)
			if err != nil {
				return err
			}
			fmt.Printf("mount %s: inodes=%d/%d free=%d\n", m.ID, m.SB.InodeCount, m.SB.MaxInodeCount, m.SB.FreeSpace)
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <image>",
		Short: "list entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dev, err := openImage(args[0], cfg)
			if err != nil {
				return err
			}
			m, err := dumbfs.Mount(dev)
			if err != nil {
				return err
			}
			c := m.Iterate()
			for {
				ino, err := c.Next()
				if err != nil {
					return err
				}
				if ino == nil {
					return nil
				}
				fmt.Printf("%-28s %8d\n", ino.Name(), ino.Size())
			}
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <image> <name>",
		Short: "create an empty regular file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dev, err := openImage(args[0], cfg)
			if err != nil {
				return err
			}
			m, err := dumbfs.Mount(dev)
			if err != nil {
				return err
			}
			if _, err := m.Create(args[1], dumbfs.RegularFile); err != nil {
				return err
			}
			return saveImage(args[0], dev, cfg)
		},
	}
}

func truncateCmd() *cobra.Command {
	var size uint32
	cmd := &cobra.Command{
		Use:   "truncate <image> <name>",
		Short: "set a file's length",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dev, err := openImage(args[0], cfg)
			if err != nil {
				return err
			}
			m, err := dumbfs.Mount(dev)
			if err != nil {
				return err
			}
			ino, err := m.Lookup(args[1])
			if err != nil {
				return err
			}
			if err := m.Truncate(ino, size); err != nil {
				return err
			}
			return saveImage(args[0], dev, cfg)
		},
	}
	cmd.Flags().Uint32Var(&size, "size", 0, "new length in bytes")
	return cmd
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <name>",
		Short: "print a file's content to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dev, err := openImage(args[0], cfg)
			if err != nil {
				return err
			}
			m, err := dumbfs.Mount(dev)
			if err != nil {
				return err
			}
			ino, err := m.Lookup(args[1])
			if err != nil {
				return err
			}
			buf := make([]byte, ino.Size())
			if _, err := m.Read(ino, 0, buf); err != nil {
				return err
			}
			_, err = os.Stdout.Write(buf)
			return err
		},
	}
}

func writeCmd() *cobra.Command {
	var offset uint32
	cmd := &cobra.Command{
		Use:   "write <image> <name>",
		Short: "write stdin into a file at an offset, growing it first if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dev, err := openImage(args[0], cfg)
			if err != nil {
				return err
			}
			m, err := dumbfs.Mount(dev)
			if err != nil {
				return err
			}
			ino, err := m.Lookup(args[1])
			if err != nil {
				return err
			}
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			if need := offset + uint32(len(data)); need > ino.Size() {
				if err := m.Truncate(ino, need); err != nil {
					return err
				}
			}
			if _, err := m.Write(ino, offset, data); err != nil {
				return err
			}
			return saveImage(args[0], dev, cfg)
		},
	}
	cmd.Flags().Uint32Var(&offset, "offset", 0, "byte offset to write at")
	return cmd
}
