package revisions

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dTX/cmd/util"
	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// RevisionCommands represents the revisions command group
	RevisionCommands = &cobra.Command{
		Use:   "revisions",
		Short: "Inspect and negotiate protocol revisions",
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the protocol revisions of this build",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, r := range abi.Supported() {
				marker := ""
				switch r {
				case abi.Current():
					marker = " (current)"
				case abi.Oldest():
					marker = " (oldest)"
				}
				fmt.Printf("%-4s%-10s%s\n", r, marker, features[r])
			}
		},
	}

	negotiateCmd = &cobra.Command{
		Use:   "negotiate",
		Short: "Negotiates a revision with a backend",
		Long: `Negotiates a revision with a backend and prints the result. With --remote
no backend is contacted, the negotiation runs locally against the given
revision list.`,
		Args: cobra.NoArgs,
		RunE: runNegotiate,
	}
)

// features summarises what every revision adds to the wire format.
var features = map[abi.Revision]string{
	abi.Revision1: "base format, fixed-width counters, inline histories",
	abi.Revision2: "uvarint counters, history back-references, skip transactions",
	abi.Revision3: "read priorities, write preconditions, data versions on reads",
}

func init() {
	cobra.OnInitialize(util.InitConfig)

	RevisionCommands.AddCommand(listCmd)
	RevisionCommands.AddCommand(negotiateCmd)

	util.SetupRPCClientFlags(negotiateCmd)
	negotiateCmd.Flags().String("remote", "", util.WrapString("Revisions of a hypothetical peer (e.g. 1,2). Skips contacting a backend"))
}

func runNegotiate(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if remote := viper.GetString("remote"); remote != "" {
		local, err := abi.ParseRevisions(viper.GetString("revisions"))
		if err != nil {
			return err
		}
		peer, err := abi.ParseRevisions(remote)
		if err != nil {
			return err
		}
		r, err := abi.Negotiate(local, peer)
		if err != nil {
			return fmt.Errorf("local [%s], remote [%s]: %w", abi.FormatRevisions(local), abi.FormatRevisions(peer), err)
		}
		fmt.Printf("negotiated %s (local [%s], remote [%s])\n", r, abi.FormatRevisions(local), abi.FormatRevisions(peer))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), util.GetTimeout())
	defer cancel()

	f, err := util.ConnectFrontend(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("negotiated %s with backend %s as %s\n", f.Revision(), f.Backend(), f.Client())
	return nil
}
