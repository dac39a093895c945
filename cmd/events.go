package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Mohsinsiddi/tkn/internal/config"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ledger"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/spf13/cobra"
)

var (
	eventsKind      string
	eventsAccount   string
	eventsFromBlock uint64
	eventsToBlock   uint64
	eventsJSON      bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List Transfer and Approval events",
	Example: `  tkn events --local demo
  tkn events --kind Approval --account accounts[1]
  tkn events --from-block 120 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := ledger.Filter{FromBlock: eventsFromBlock, ToBlock: eventsToBlock}
		switch eventsKind {
		case "":
		case string(erc20.KindTransfer), string(erc20.KindApproval):
			f.Kind = erc20.EventKind(eventsKind)
		default:
			return fmt.Errorf("unknown event kind %q (Transfer or Approval)", eventsKind)
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if eventsAccount != "" {
			a, err := s.account(eventsAccount)
			if err != nil {
				return err
			}
			f.Address = &a
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCTimeout)
		defer cancel()
		evs, err := s.events(ctx, f)
		if err != nil {
			return err
		}

		if eventsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(evs)
		}
		if len(evs) == 0 {
			fmt.Println(ui.Info("No events."))
			return nil
		}
		t := ui.NewTable(
			ui.Column{Title: "Block", Right: true},
			ui.Column{Title: "Event"},
			ui.Column{Title: "From / Owner"},
			ui.Column{Title: "To / Spender"},
			ui.Column{Title: "Tokens", Right: true},
			ui.Column{Title: "Tx"},
		)
		for _, ev := range evs {
			t.AddRow(
				fmt.Sprintf("%d", ev.BlockNumber),
				ui.Symbol(string(ev.Kind)),
				ui.Addr(s.name(ev.From)),
				ui.Addr(s.name(ev.To)),
				ui.Val(ev.Tokens.String()),
				ui.Meta(ui.TruncateAddr(ev.TxHash.Hex())),
			)
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d event(s) on %s", len(evs), s.label)))
		return nil
	},
}

func init() {
	f := eventsCmd.Flags()
	f.StringVar(&eventsKind, "kind", "", "only Transfer or Approval events")
	f.StringVar(&eventsAccount, "account", "", "only events involving this account")
	f.Uint64Var(&eventsFromBlock, "from-block", 0, "first block")
	f.Uint64Var(&eventsToBlock, "to-block", 0, "last block (default: latest)")
	f.BoolVar(&eventsJSON, "json", false, "print JSON")
}
