package tx

import (
	"context"

	"github.com/ValentinKolb/dTX/cmd/util"
	"github.com/ValentinKolb/dTX/rpc/client"
	"github.com/spf13/cobra"
)

var (
	frontend *client.Frontend
	ctx      context.Context
	cancel   context.CancelFunc

	// TransactionCommands represents the tx command group
	TransactionCommands = &cobra.Command{
		Use:   "tx",
		Short: "Run transactions against a dTX backend",
		Long: `Run transactions against a dTX backend. Every invocation connects a new
client generation, negotiates the protocol revision and runs exactly one
transaction on the standalone history.`,
		PersistentPreRunE:  setupFrontend,
		PersistentPostRunE: closeFrontend,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupRPCClientFlags(TransactionCommands)

	TransactionCommands.AddCommand(readCmd)
	TransactionCommands.AddCommand(existsCmd)
	TransactionCommands.AddCommand(writeCmd)
	TransactionCommands.AddCommand(mergeCmd)
	TransactionCommands.AddCommand(deleteCmd)
	TransactionCommands.AddCommand(perfTestCmd)
}

// setupFrontend connects the frontend used by all subcommands
func setupFrontend(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	ctx, cancel = context.WithTimeout(context.Background(), util.GetTimeout())

	f, err := util.ConnectFrontend(ctx)
	if err != nil {
		cancel()
		return err
	}
	frontend = f
	return nil
}

func closeFrontend(*cobra.Command, []string) error {
	defer cancel()
	return frontend.Close()
}
