package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mohsinsiddi/tkn/internal/chain"
	"github.com/Mohsinsiddi/tkn/internal/config"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/spf13/cobra"
)

var (
	netChainID  int64
	netExplorer string
	netLocal    bool
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Manage networks",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known networks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all := cfg.Registry().All()
		t := ui.NewTable(
			ui.Column{Title: "Name"},
			ui.Column{Title: "RPC"},
			ui.Column{Title: "Chain ID", Right: true},
			ui.Column{Title: "Local"},
			ui.Column{Title: "Default"},
		)
		for _, n := range all {
			local, def := "", ""
			if n.Local {
				local = "yes"
			}
			if n.Name == cfg.DefaultNetwork {
				def = ui.StyleSuccess.Render("✓")
			}
			t.AddRow(ui.Symbol(n.Name), ui.Addr(n.RPC), fmt.Sprintf("%d", n.ChainID), ui.Meta(local), def)
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d network(s)", len(all))))
		return nil
	},
}

var networkAddCmd = &cobra.Command{
	Use:   "add <name> <rpc-url>",
	Short: "Add or override a network",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.AddNetwork(args[0], config.NetworkConfig{
			RPC:      args[1],
			ChainID:  netChainID,
			Explorer: netExplorer,
			Local:    netLocal,
		}); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Network %s → %s", ui.Symbol(args[0]), ui.Addr(args[1]))))
		fmt.Println(ui.Hint(fmt.Sprintf("Check it with: tkn network ping %s", args[0])))
		return nil
	},
}

var networkRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a custom network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveNetwork(args[0]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Network %s removed.", args[0])))
		return nil
	},
}

type pingResult struct {
	net     *chain.Network
	ms      int64
	block   uint64
	chainID int64
	err     error
}

var networkPingCmd = &cobra.Command{
	Use:   "ping [name...]",
	Short: "Check that networks answer and report the expected chain id",
	Long:  "Ping the named networks, or every known network when none is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := cfg.Registry()
		var nets []*chain.Network
		if len(args) == 0 {
			for _, n := range reg.All() {
				nets = append(nets, &n)
			}
		}
		for _, name := range args {
			n, err := reg.GetByName(name)
			if err != nil {
				return fmt.Errorf("unknown network %q", name)
			}
			nets = append(nets, n)
		}

		results := make([]pingResult, len(nets))
		var wg sync.WaitGroup
		for i, n := range nets {
			wg.Add(1)
			go func(i int, n *chain.Network) {
				defer wg.Done()
				results[i] = ping(cmd.Context(), n)
			}(i, n)
		}
		spin := ui.NewSpinner(fmt.Sprintf("Pinging %d network(s)...", len(nets)))
		spin.Start()
		wg.Wait()
		spin.Stop()

		t := ui.NewTable(
			ui.Column{Title: "Network"},
			ui.Column{Title: "Status"},
			ui.Column{Title: "Latency", Right: true},
			ui.Column{Title: "Block", Right: true},
			ui.Column{Title: "Chain ID", Right: true},
		)
		for _, r := range results {
			status := ui.StyleSuccess.Render("ok")
			switch {
			case r.err != nil:
				status = ui.StyleError.Render(r.err.Error())
			case r.net.ChainID != 0 && r.chainID != r.net.ChainID:
				status = ui.StyleWarning.Render(fmt.Sprintf("chain id %d, expected %d", r.chainID, r.net.ChainID))
			}
			latency, block, id := "", "", ""
			if r.err == nil {
				latency = fmt.Sprintf("%dms", r.ms)
				block = fmt.Sprintf("%d", r.block)
				id = fmt.Sprintf("%d", r.chainID)
			}
			t.AddRow(ui.Symbol(r.net.Name), status, latency, block, id)
		}
		fmt.Println(t.Render())
		return nil
	},
}

func ping(ctx context.Context, n *chain.Network) pingResult {
	ctx, cancel := context.WithTimeout(ctx, config.RPCTimeout)
	defer cancel()
	c := chain.NewEVMClient(n.RPC)
	res := pingResult{net: n}
	latency, block, err := c.Ping(ctx)
	if err != nil {
		res.err = err
		return res
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		res.err = err
		return res
	}
	res.ms = latency.Milliseconds()
	res.block = block
	res.chainID = id.Int64()
	logger.WithField("network", n.Name).Debugf("ping %dms block %d", res.ms, block)
	return res
}

func init() {
	networkAddCmd.Flags().Int64Var(&netChainID, "chain-id", 0, "expected chain id (checked by ping)")
	networkAddCmd.Flags().StringVar(&netExplorer, "explorer", "", "block explorer base URL")
	networkAddCmd.Flags().BoolVar(&netLocal, "dev-node", false, "development node (unlocked accounts, instant mining)")
	networkCmd.AddCommand(networkListCmd, networkAddCmd, networkRemoveCmd, networkPingCmd)
}
