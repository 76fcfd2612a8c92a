// Package cli wires astraea's cobra command tree: one file per verb
// group (store.go, tree.go, file.go, config_cmd.go), each registering its
// cobra.Command in this package's init.
package cli

import (
	"fmt"
	"os"

	"github.com/mamazu/astraea/internal/config"
	"github.com/mamazu/astraea/internal/treestore/boltstore"
	"github.com/spf13/cobra"
)

const astraeaVersion = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "astraea",
	Short: "astraea is a content-addressed tree store and prolly tree toolkit",
	Long:  `astraea stores arbitrary trees of bytes by content digest, and builds a sorted, order-independent prolly tree index on top of that store.`,
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("astraea version %s\n", astraeaVersion)
			os.Exit(0)
		}
		cmd.Help()
	},
}

var version bool
var storePath string

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&version, "version", false, "print the astraea version")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "path to the bolt-backed store (default: from config)")

	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storePutCmd, storeGetCmd)

	rootCmd.AddCommand(treeCmd)
	treeCmd.AddCommand(treeInsertCmd, treeFindCmd, treeVerifyCmd)

	rootCmd.AddCommand(fileCmd)
	fileCmd.AddCommand(fileWriteCmd, fileReadCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configSetCmd)
}

// openStore opens the bolt-backed store at the --store flag's path, or
// the configured default path if the flag was not given.
func openStore() (*boltstore.Store, func(), error) {
	path := storePath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("astraea: %w", err)
		}
		path = cfg.Store.Path
	}
	store, err := boltstore.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("astraea: opening store %s: %w", path, err)
	}
	return store, func() { store.Close() }, nil
}
