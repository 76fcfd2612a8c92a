package cli

import (
	"fmt"

	"github.com/mamazu/astraea/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write astraea's user configuration file",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Printf("store.path = %s\n", cfg.Store.Path)
		fmt.Printf("tree.branching_factor = %d\n", cfg.Tree.BranchingFactor)
		fmt.Printf("tree.average_leaf_size = %d\n", cfg.Tree.AverageLeafSize)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value (store.path, tree.branching_factor, tree.average_leaf_size)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		switch args[0] {
		case "store.path":
			cfg.Store.Path = args[1]
		case "tree.branching_factor":
			var n int
			if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil {
				return fmt.Errorf("parsing %q as an integer: %w", args[1], err)
			}
			cfg.Tree.BranchingFactor = n
		case "tree.average_leaf_size":
			var n int
			if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil {
				return fmt.Errorf("parsing %q as an integer: %w", args[1], err)
			}
			cfg.Tree.AverageLeafSize = n
		default:
			return fmt.Errorf("unknown config key: %s", args[0])
		}
		return config.Save(cfg)
	},
}
