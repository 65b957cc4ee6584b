package tx

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/rpc/client"
	"github.com/spf13/cobra"
)

var (
	readCmd = &cobra.Command{
		Use:   "read [path]",
		Short: "Reads the node at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshotOnly, _ := cmd.Flags().GetBool("snapshot-only")

			tx := frontend.Standalone().Begin()
			res, err := tx.Read(ctx, args[0], snapshotOnly)
			discard(tx)
			if err != nil {
				return err
			}

			version := "n/a"
			if res.Version != nil {
				version = strconv.FormatUint(*res.Version, 10)
			}
			fmt.Printf("path=%s, found=%t, version=%s, data=%s\n", args[0], res.Found, version, res.Data)
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [path]",
		Short: "Checks if a node exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshotOnly, _ := cmd.Flags().GetBool("snapshot-only")

			tx := frontend.Standalone().Begin()
			found, err := tx.Exists(ctx, args[0], snapshotOnly)
			discard(tx)
			if err != nil {
				return err
			}
			fmt.Printf("path=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	writeCmd = &cobra.Command{
		Use:   "write [path] [value]",
		Short: "Replaces the node at a path and its subtree (value - reads stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := value(args[1])
			if err != nil {
				return err
			}
			return commit(cmd, datatree.Write(args[0], data))
		},
	}
	mergeCmd = &cobra.Command{
		Use:   "merge [path] [value]",
		Short: "Merges a JSON object into the node at a path (value - reads stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := value(args[1])
			if err != nil {
				return err
			}
			return commit(cmd, datatree.Merge(args[0], data))
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [path]",
		Short: "Deletes the node at a path and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commit(cmd, datatree.Delete(args[0]))
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{readCmd, existsCmd} {
		c.Flags().Bool("snapshot-only", false, "Read the committed state only")
	}
	for _, c := range []*cobra.Command{writeCmd, mergeCmd, deleteCmd} {
		c.Flags().Uint64("expected-version", 0, "Fail with a conflict unless the node is at this version (0 = absent, requires revision 3)")
		c.Flags().Bool("coordinated", false, "Commit with the three phase protocol instead of a single request")
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// commit runs mod as a single transaction and purges it afterwards.
func commit(cmd *cobra.Command, mod datatree.Modification) error {
	if cmd.Flags().Changed("expected-version") {
		expected, _ := cmd.Flags().GetUint64("expected-version")
		mod = mod.WithExpectedVersion(expected)
	}
	coordinated, _ := cmd.Flags().GetBool("coordinated")

	tx := frontend.Standalone().Begin()

	var index uint64
	var err error
	if coordinated {
		if err = tx.Ready(ctx, mod); err == nil {
			index, err = tx.CommitCoordinated(ctx)
		}
	} else {
		index, err = tx.Submit(ctx, mod)
	}
	if err != nil {
		discard(tx)
		return err
	}

	if err := tx.Purge(ctx); err != nil {
		return err
	}
	fmt.Printf("%s %s committed at index %d (revision %s, backend %s)\n", mod.Op, mod.Path, index, frontend.Revision(), frontend.Backend())
	return nil
}

// discard aborts and purges a transaction, errors are ignored.
func discard(tx *client.Transaction) {
	_ = tx.Abort(ctx)
	_ = tx.Purge(ctx)
}

func value(arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	return io.ReadAll(os.Stdin)
}
