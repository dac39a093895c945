package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/tkn/internal/contract"
	"github.com/Mohsinsiddi/tkn/internal/store"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List local ledgers and recorded deployments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(cfg.DBPath())
		if err != nil {
			return err
		}
		defer db.Close()
		locals, err := db.List()
		if err != nil {
			return err
		}

		reg := contract.NewRegistry(cfg.DeploymentsPath())
		if err := reg.Load(); err != nil {
			return err
		}
		deployed := reg.All()

		if len(locals) == 0 && len(deployed) == 0 {
			fmt.Println(ui.Info("No tokens yet."))
			fmt.Println(ui.Hint("Create one with: tkn deploy --local demo"))
			return nil
		}

		if len(locals) > 0 {
			fmt.Println(ui.StyleHeader.Render("Local ledgers"))
			t := ui.NewTable(
				ui.Column{Title: "ID"},
				ui.Column{Title: "Name"},
				ui.Column{Title: "Symbol"},
				ui.Column{Title: "Decimals", Right: true},
				ui.Column{Title: "Block", Right: true},
				ui.Column{Title: "Events", Right: true},
			)
			for _, l := range locals {
				t.AddRow(ui.Val(l.ID), l.Name, ui.Symbol(l.Symbol),
					fmt.Sprintf("%d", l.Decimals), fmt.Sprintf("%d", l.Block), fmt.Sprintf("%d", l.Events))
			}
			fmt.Println(t.Render())
		}
		if len(deployed) > 0 {
			fmt.Println(ui.StyleHeader.Render("Deployments"))
			t := ui.NewTable(
				ui.Column{Title: "Name"},
				ui.Column{Title: "Network"},
				ui.Column{Title: "Address"},
				ui.Column{Title: "Deployed"},
			)
			for _, e := range deployed {
				t.AddRow(ui.Val(e.Name), ui.Symbol(e.Network), ui.Addr(e.Address), ui.Meta(e.DeployedAt))
			}
			fmt.Println(t.Render())
		}
		return nil
	},
}

var tokensRemoveCmd = &cobra.Command{
	Use:   "remove <id|name>",
	Short: "Delete a local ledger (--local) or forget a deployment",
	Long: `Without --network the argument is a local ledger id and the ledger is
deleted. With --network it names a deployment in deployments.json; the
contract itself is untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if networkFlag == "" {
			if !yesFlag && !ui.Confirm(fmt.Sprintf("Delete local ledger %q?", name)) {
				fmt.Println(ui.Meta("Cancelled."))
				return nil
			}
			db, err := store.Open(cfg.DBPath())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Delete(name); err != nil {
				return err
			}
			fmt.Println(ui.Success(fmt.Sprintf("Local ledger %q deleted.", name)))
			return nil
		}

		reg := contract.NewRegistry(cfg.DeploymentsPath())
		if err := reg.Load(); err != nil {
			return err
		}
		if err := reg.Remove(name, networkFlag); err != nil {
			return err
		}
		if err := reg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Deployment %q on %s forgotten.", name, networkFlag)))
		return nil
	},
}

func init() {
	tokensRemoveCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "skip the confirmation prompt")
	tokensCmd.AddCommand(tokensRemoveCmd)
}
