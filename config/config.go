// Package config loads the settings dfsutil and any embedding host use
// to format or mount a DumbFS volume, the way the teacher's cmd/sqfs
// loads its own flags: a single struct, populated from flags/env/file
// via spf13/viper with pflag-bound command-line overrides.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is every knob DumbFS's format/mount path takes (spec §3/§9:
// block size, page size, inode table capacity, per-file length ceiling,
// and the scratch-mode choice of spec §4.2).
type Config struct {
	PageSize        int    `mapstructure:"page_size"`
	BlockSize       uint32 `mapstructure:"block_size"`
	Blocks          uint32 `mapstructure:"blocks"`
	MaxInodeCount   uint32 `mapstructure:"max_inode_count"`
	MinimumFileSize uint32 `mapstructure:"min_file_size"`
	UseRAMAsCache   bool   `mapstructure:"use_ram_scratch"`
}

// Default returns the configuration dfsutil falls back to when no flag,
// env var or config file overrides a field.
func Default() Config {
	return Config{
		PageSize:        4096,
		BlockSize:       131072,
		Blocks:          256,
		MaxInodeCount:   128,
		MinimumFileSize: 1 << 20,
		UseRAMAsCache:   true,
	}
}

// BindFlags registers every Config field as a pflag, so a cobra command
// can expose them as --page-size, --block-size, etc.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	d := Default()
	flags.Int("page-size", d.PageSize, "device page size in bytes")
	flags.Uint32("block-size", d.BlockSize, "device erase block size in bytes")
	flags.Uint32("blocks", d.Blocks, "number of erase blocks on the device")
	flags.Uint32("max-inode-count", d.MaxInodeCount, "dirent table capacity")
	flags.Uint32("min-file-size", d.MinimumFileSize, "per-file length ceiling in bytes")
	flags.Bool("use-ram-scratch", d.UseRAMAsCache, "use a RAM buffer for the buffered-rewrite scratch area instead of a reserved flash block")

	v.BindPFlag("page_size", flags.Lookup("page-size"))
	v.BindPFlag("block_size", flags.Lookup("block-size"))
	v.BindPFlag("blocks", flags.Lookup("blocks"))
	v.BindPFlag("max_inode_count", flags.Lookup("max-inode-count"))
	v.BindPFlag("min_file_size", flags.Lookup("min-file-size"))
	v.BindPFlag("use_ram_scratch", flags.Lookup("use-ram-scratch"))
}

// Load reads v's current state (flags, env, config file already merged
// by the caller) into a Config.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg, viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
	})); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the cross-field invariants the buffered-rewrite engine
// and the on-flash layout both rely on.
func (c Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page_size must be > 0")
	}
	if c.BlockSize == 0 || int(c.BlockSize)%c.PageSize != 0 {
		return fmt.Errorf("config: block_size must be a non-zero multiple of page_size")
	}
	if c.Blocks == 0 {
		return fmt.Errorf("config: blocks must be > 0")
	}
	if c.MaxInodeCount == 0 {
		return fmt.Errorf("config: max_inode_count must be > 0")
	}
	if !c.UseRAMAsCache && c.Blocks < 2 {
		return fmt.Errorf("config: flash-scratch mode needs at least 2 blocks")
	}
	return nil
}
