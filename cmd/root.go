package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ValentinKolb/dTX/cmd/revisions"
	"github.com/ValentinKolb/dTX/cmd/serve"
	"github.com/ValentinKolb/dTX/cmd/tx"
	"github.com/ValentinKolb/dTX/cmd/util"
	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dtx",
		Short: "versioned transaction access protocol",
		Long: fmt.Sprintf(`dTX (v%s, protocol %s)

Frontends and backends of a RAFT replicated shard store, talking a
sequenced, versioned transaction protocol that survives lost and
reordered messages and rolling upgrades.`, Version, abi.Current()),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dTX",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dTX v%s (protocol revisions %s)\n", Version, abi.FormatRevisions(abi.Supported()))
		},
	}

	// upgradeCmd represents the upgrade command
	upgradeCmd = &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade dTX to the latest version",
		Long: `Upgrade dTX to the latest version by downloading and running the installation script.

Backends accept older protocol revisions, so nodes can be upgraded one at a
time. Pin upgraded nodes with --revisions until the whole cluster runs the
new version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runtime.GOOS == "windows" {
				return fmt.Errorf("windows is not supported")
			}

			installPath, _ := cmd.Flags().GetString("path")
			fromSource, _ := cmd.Flags().GetBool("source")
			script := upgradeScript(installPath, fromSource)

			fmt.Printf("Upgrading dTX v%s to the latest version...\n", Version)
			fmt.Println("Executing:", script)

			shellCmd := exec.Command("bash", "-c", script)
			shellCmd.Stdout = os.Stdout
			shellCmd.Stderr = os.Stderr
			if err := shellCmd.Run(); err != nil {
				return fmt.Errorf("error upgrading dTX: %w", err)
			}

			fmt.Println("dTX has been successfully upgraded!")
			return nil
		},
	}
)

const installScriptURL = "https://raw.githubusercontent.com/ValentinKolb/dTX/refs/heads/main/install.sh"

// upgradeScript builds the shell pipeline that downloads and runs the
// installation script.
func upgradeScript(installPath string, fromSource bool) string {
	var options []string
	if installPath != "" {
		options = append(options, "--path="+installPath)
	}
	if fromSource {
		options = append(options, "--source")
	}

	script := fmt.Sprintf("curl -s %s | bash", installScriptURL)
	if len(options) > 0 {
		script += " -- " + strings.Join(options, " ")
	}
	return script
}

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(tx.TransactionCommands)
	RootCmd.AddCommand(revisions.RevisionCommands)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(upgradeCmd)

	// Add Flags for upgrade command
	upgradeCmd.Flags().String("path", "", "Installation path for the upgraded version")
	upgradeCmd.Flags().Bool("source", false, "Install from source instead of using pre-compiled binaries")

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix, http)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
