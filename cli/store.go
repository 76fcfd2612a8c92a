package cli

import (
	"fmt"
	"os"

	"github.com/mamazu/astraea/internal/config"
	"github.com/mamazu/astraea/internal/digest"
	"github.com/mamazu/astraea/internal/segmentedblob"
	"github.com/mamazu/astraea/internal/treenode"
	"github.com/mamazu/astraea/internal/treestore"
	"github.com/spf13/cobra"
)

// splitIntoLeaves stores data as a sequence of raw leaf nodes no longer
// than treenode.MaxBlobLength each, returning their digests in order.
func splitIntoLeaves(data []byte, store treestore.Store) ([]digest.Digest, error) {
	if len(data) == 0 {
		node, err := treenode.New(nil, nil)
		if err != nil {
			return nil, err
		}
		d, err := store.StoreNode(treenode.HashedFrom(node))
		if err != nil {
			return nil, fmt.Errorf("storing empty leaf: %w", err)
		}
		return []digest.Digest{d}, nil
	}

	var segments []digest.Digest
	for offset := 0; offset < len(data); offset += treenode.MaxBlobLength {
		end := offset + treenode.MaxBlobLength
		if end > len(data) {
			end = len(data)
		}
		node, err := treenode.New(data[offset:end], nil)
		if err != nil {
			return nil, fmt.Errorf("building leaf at offset %d: %w", offset, err)
		}
		d, err := store.StoreNode(treenode.HashedFrom(node))
		if err != nil {
			return nil, fmt.Errorf("storing leaf at offset %d: %w", offset, err)
		}
		segments = append(segments, d)
	}
	return segments, nil
}

var storeBranching int

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Store and retrieve raw byte streams as segmented blobs",
}

var storePutCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Segment a file's contents and store it, printing the root digest",
	Args:  cobra.ExactArgs(1),
	RunE:  storePut,
}

var storeGetCmd = &cobra.Command{
	Use:   "get <digest> <file>",
	Short: "Load a previously stored segmented blob and write it to a file",
	Args:  cobra.ExactArgs(2),
	RunE:  storeGet,
}

func init() {
	storePutCmd.Flags().IntVar(&storeBranching, "branching", 0, "segmented-blob branching factor (default: from config)")
}

func storePut(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	branching := storeBranching
	if branching == 0 {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		branching = cfg.Tree.BranchingFactor
	}

	segments, err := splitIntoLeaves(data, store)
	if err != nil {
		return err
	}

	root, err := segmentedblob.Save(segments, uint64(len(data)), branching, store)
	if err != nil {
		return fmt.Errorf("storing %s: %w", args[0], err)
	}
	fmt.Println(root)
	return nil
}

func storeGet(cmd *cobra.Command, args []string) error {
	root, err := digest.ParseHex(args[0])
	if err != nil {
		return fmt.Errorf("parsing digest %q: %w", args[0], err)
	}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	segments, size, err := segmentedblob.Load(root, store)
	if err != nil {
		return fmt.Errorf("loading %s: %w", args[0], err)
	}

	out, err := os.Create(args[1])
	if err != nil {
		return fmt.Errorf("creating %s: %w", args[1], err)
	}
	defer out.Close()

	var written uint64
	for _, segDigest := range segments {
		delayed, ok := store.LoadNode(segDigest)
		if !ok {
			return fmt.Errorf("segment %s missing from store", segDigest)
		}
		hashed, err := delayed.Resolve()
		if err != nil {
			return fmt.Errorf("resolving segment %s: %w", segDigest, err)
		}
		n, err := out.Write(hashed.Node().Blob())
		if err != nil {
			return fmt.Errorf("writing %s: %w", args[1], err)
		}
		written += uint64(n)
	}
	if written != size {
		return fmt.Errorf("wrote %d bytes but blob declares %d", written, size)
	}
	return nil
}
