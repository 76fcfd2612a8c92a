// Package config loads and saves the JSON configuration cmd/astraea reads
// its defaults from: store location, segmented-blob branching factor, and
// the prolly tree's default average leaf size.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the settings cmd/astraea needs to open a store and pick
// default parameters for the segmented-blob and prolly-tree codecs.
type Config struct {
	Store StoreConfig `json:"store"`
	Tree  TreeConfig  `json:"tree"`
}

// StoreConfig selects and configures the on-disk backend.
type StoreConfig struct {
	Path string `json:"path"`
}

// TreeConfig holds the default shape parameters for new trees.
type TreeConfig struct {
	BranchingFactor int `json:"branching_factor"`
	AverageLeafSize int `json:"average_leaf_size"`
}

// DefaultBranchingFactor is the segmented-blob fanout used when the
// config doesn't specify one.
const DefaultBranchingFactor = 32

// DefaultConfig returns a config with sensible defaults: a store file
// under the user's home directory, and the prolly tree package's own
// default leaf size.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Tree: TreeConfig{
			BranchingFactor: DefaultBranchingFactor,
			AverageLeafSize: 64,
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".astraea.db"
	}
	return filepath.Join(home, ".astraea.db")
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".astraeaconfig"), nil
}

// Load reads the user's config file, falling back to DefaultConfig for
// any field it omits. A missing config file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := configPath()
	if err != nil {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	merge(cfg, &onDisk)
	return cfg, nil
}

// Save writes cfg to the user's config file, creating it if necessary.
func Save(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// merge overlays the non-zero fields of src onto dst.
func merge(dst, src *Config) {
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}
	if src.Tree.BranchingFactor != 0 {
		dst.Tree.BranchingFactor = src.Tree.BranchingFactor
	}
	if src.Tree.AverageLeafSize != 0 {
		dst.Tree.AverageLeafSize = src.Tree.AverageLeafSize
	}
}
