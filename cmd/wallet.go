package cmd

import (
	"fmt"
	"os"

	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/Mohsinsiddi/tkn/internal/wallet"
	"github.com/spf13/cobra"
)

var (
	walletKeyFlag  string
	walletDevIndex int
	walletShowKeys bool
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage wallets",
}

var walletAddCmd = &cobra.Command{
	Use:   "add <name> <address>",
	Short: "Add a watch-only wallet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, address := args[0], args[1]
		if err := newWalletManager().AddWatchOnly(name, address); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Watch-only wallet %q added: %s", name, ui.Addr(address))))
		fmt.Println(ui.Hint("To sign transactions import a key instead: tkn wallet import <name> --key <private-key>"))
		return nil
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Import a signing wallet from a private key",
	Long: `Import a private key into the OS keychain and register it as a signing wallet.

The key comes from --key, from the TKN_KEY environment variable, or with
--dev <i> from the deterministic development account accounts[i].`,
	Example: `  tkn wallet import alice --key 0x4f3e...
  TKN_KEY=0x4f3e... tkn wallet import ci
  tkn wallet import dev0 --dev 0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		key := walletKeyFlag
		switch {
		case walletDevIndex >= 0:
			devs, err := wallet.DevAccounts(wallet.DevAccountCount)
			if err != nil {
				return err
			}
			if walletDevIndex >= len(devs) {
				return fmt.Errorf("--dev must be 0-%d", len(devs)-1)
			}
			key = devs[walletDevIndex].HexKey()
		case key == "":
			key = os.Getenv(wallet.KeyEnvVar)
		}
		if key == "" {
			return fmt.Errorf("no key given; pass --key, --dev or set %s", wallet.KeyEnvVar)
		}

		mgr := newWalletManager()
		w, err := mgr.AddWithKey(name, key)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Signing wallet %q imported: %s", name, ui.Addr(w.Address))))
		fmt.Println(ui.Hint(fmt.Sprintf("Set as default with: tkn wallet use %s", name)))
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all wallets",
	RunE: func(cmd *cobra.Command, args []string) error {
		wallets, err := newWalletManager().List()
		if err != nil {
			return err
		}
		if len(wallets) == 0 {
			fmt.Println(ui.Info("No wallets configured yet."))
			fmt.Println(ui.Hint("Add one with: tkn wallet import alice --key <private-key>"))
			return nil
		}

		t := ui.NewTable(
			ui.Column{Title: "Name", Width: 16},
			ui.Column{Title: "Address", Width: 44},
			ui.Column{Title: "Type", Width: 12},
			ui.Column{Title: "Default", Width: 8},
		)
		for _, w := range wallets {
			def := ""
			if w.IsDefault || w.Name == cfg.DefaultWallet {
				def = ui.StyleSuccess.Render("✓")
			}
			t.AddRow(ui.Val(w.Name), ui.Addr(w.Address), ui.Meta(walletTypeLabel(w.Type)), def)
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d wallet(s) configured", len(wallets))))
		return nil
	},
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a wallet and its stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !yesFlag && !ui.Confirm(fmt.Sprintf("Remove wallet %q?", name)) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
		if err := newWalletManager().Remove(name); err != nil {
			return err
		}
		if cfg.DefaultWallet == name {
			cfg.DefaultWallet = ""
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		fmt.Println(ui.Success(fmt.Sprintf("Wallet %q removed.", name)))
		return nil
	},
}

var walletUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the default wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := newWalletManager().SetDefault(name); err != nil {
			return err
		}
		cfg.DefaultWallet = name
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Default wallet set to %q.", name)))
		return nil
	},
}

var walletAccountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the deterministic development accounts",
	Long: `List accounts[0..9], the accounts local ledgers and the devchain test
backend use. Their keys are public knowledge: never fund them on a real
network.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devs, err := wallet.DevAccounts(wallet.DevAccountCount)
		if err != nil {
			return err
		}
		cols := []ui.Column{{Title: "Account"}, {Title: "Address"}}
		if walletShowKeys {
			cols = append(cols, ui.Column{Title: "Private key"})
		}
		t := ui.NewTable(cols...)
		for _, a := range devs {
			row := []string{fmt.Sprintf("accounts[%d]", a.Index), ui.Addr(a.Address.Hex())}
			if walletShowKeys {
				row = append(row, ui.Meta(a.HexKey()))
			}
			t.AddRow(row...)
		}
		fmt.Println(t.Render())
		if walletShowKeys {
			fmt.Println(ui.Warn("Development keys only. Anyone can derive them."))
		}
		return nil
	},
}

// walletTypeLabel converts an internal wallet type to a user-friendly label.
func walletTypeLabel(t string) string {
	switch t {
	case wallet.TypeSigning:
		return "read-write"
	default:
		return t
	}
}

func init() {
	walletImportCmd.Flags().StringVar(&walletKeyFlag, "key", "", "hex private key (stored in the OS keychain)")
	walletImportCmd.Flags().IntVar(&walletDevIndex, "dev", -1, "import development account accounts[i]")
	walletImportCmd.MarkFlagsMutuallyExclusive("key", "dev")
	walletRemoveCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "skip the confirmation prompt")
	walletAccountsCmd.Flags().BoolVar(&walletShowKeys, "keys", false, "also print private keys")
	walletCmd.AddCommand(walletAddCmd, walletImportCmd, walletListCmd, walletRemoveCmd, walletUseCmd, walletAccountsCmd)
}
