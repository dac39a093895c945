package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mohsinsiddi/tkn/internal/config"
	"github.com/Mohsinsiddi/tkn/internal/log"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/tkn/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	cfgDir      string
	cfg         *config.Config
	logger      *logrus.Logger
	verbose     bool
	localID     string
	networkFlag string
	tokenFlag   string
	walletFlag  string
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "tkn",
	Short: "ERC-20 token ledger, client and test harness",
	Long: `tkn deploys and drives an ERC-20 token.

A token is either a local ledger kept in ~/.tkn/tkn.db (select it with
--local <id>) or a contract on a JSON-RPC network (--network, --token).
Writes on a network are signed by the wallet named with --wallet.

  tkn deploy --local demo
  tkn transfer --local demo 0xf17f52151EbEF6C7334FAD080c5704D77216b732 100
  tkn test
  tkn dashboard --local demo`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(ui.Banner())
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger = log.New(os.Stderr, level)
		logger.WithField("dir", cfg.Dir()).Debug("config loaded")
		return nil
	},
}

// Execute runs the root command. Interrupts cancel the command context so
// pending waits and the server stop cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Err(err.Error()))
		os.Exit(1)
	}
}

func init() {
	// TKN_CONFIG_DIR overrides the default; --config overrides both.
	if envDir := os.Getenv("TKN_CONFIG_DIR"); envDir != "" {
		cfgDir = envDir
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.tkn)")
	pf.StringVar(&localID, "local", "", "operate on the local ledger with this id")
	pf.StringVarP(&networkFlag, "network", "n", "", "network name (default: config default_network)")
	pf.StringVarP(&tokenFlag, "token", "t", "", "deployment name or contract address (default: config default_token)")
	pf.StringVarP(&walletFlag, "wallet", "w", "", "wallet to act as; for local ledgers also accounts[i] or an address")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.MarkFlagsMutuallyExclusive("local", "network")
	rootCmd.MarkFlagsMutuallyExclusive("local", "token")

	rootCmd.AddCommand(
		deployCmd,
		infoCmd,
		balanceCmd,
		allowanceCmd,
		transferCmd,
		approveCmd,
		transferFromCmd,
		eventsCmd,
		tokensCmd,
		testCmd,
		dashboardCmd,
		serveCmd,
		walletCmd,
		configCmd,
		networkCmd,
	)
}
