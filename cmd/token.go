package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/tkn/internal/config"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	unitsFlag bool
	yesFlag   bool
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show token metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCTimeout)
		defer cancel()
		md, err := erc20.FetchMetadata(ctx, s.token)
		if err != nil {
			return err
		}
		pairs := [][2]string{
			{"Name", ui.Val(md.Name)},
			{"Symbol", ui.Symbol(md.Symbol)},
			{"Decimals", fmt.Sprintf("%d", md.Decimals)},
			{"Total Supply", ui.Val(erc20.FormatUnits(md.TotalSupply, md.Decimals)) + " " + ui.Meta("("+md.TotalSupply.String()+")")},
			{"Backend", s.label},
		}
		if s.local() {
			pairs = append(pairs,
				[2]string{"Deployer", ui.Addr(s.ledger.Deployer().Hex())},
				[2]string{"Block", fmt.Sprintf("%d", s.ledger.BlockNumber())},
				[2]string{"Holders", fmt.Sprintf("%d", len(s.ledger.Holders()))},
			)
		} else {
			pairs = append(pairs, [2]string{"Address", ui.Addr(s.contract.Address().Hex())})
		}
		fmt.Println(ui.KeyValueBlock("Token", pairs))
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [account]",
	Short: "Show the token balance of an account (default: the selected wallet)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		owner := s.caller
		if len(args) == 1 {
			if owner, err = s.account(args[0]); err != nil {
				return err
			}
		} else if owner == (common.Address{}) {
			return errNoCaller
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCTimeout)
		defer cancel()
		bal, err := s.token.BalanceOf(ctx, owner)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", ui.Addr(owner.Hex()), s.format(ctx, bal))
		return nil
	},
}

var allowanceCmd = &cobra.Command{
	Use:   "allowance <owner> <spender>",
	Short: "Show how much spender may transfer on behalf of owner",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		owner, err := s.account(args[0])
		if err != nil {
			return err
		}
		spender, err := s.account(args[1])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCTimeout)
		defer cancel()
		amt, err := s.token.Allowance(ctx, owner, spender)
		if err != nil {
			return err
		}
		fmt.Printf("%s → %s  %s\n", ui.Addr(s.name(owner)), ui.Addr(s.name(spender)), s.format(ctx, amt))
		return nil
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <to> <amount>",
	Short: "Transfer tokens from the selected wallet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		to, err := s.account(args[0])
		if err != nil {
			return err
		}
		amount, err := s.amount(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		return s.send(cmd.Context(), "Transfer", [][2]string{
			{"From", ui.Addr(s.caller.Hex())},
			{"To", ui.Addr(to.Hex())},
			{"Amount", amount.String()},
		}, func(ctx context.Context, opts *erc20.TxOpts) (*erc20.Receipt, error) {
			return s.token.Transfer(ctx, opts, to, amount)
		})
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <spender> <amount>",
	Short: "Allow spender to transfer up to amount from the selected wallet",
	Long: `Set the allowance of spender over the selected wallet's tokens.

The new amount replaces the old one; it is not added to it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		spender, err := s.account(args[0])
		if err != nil {
			return err
		}
		amount, err := s.amount(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		return s.send(cmd.Context(), "Approve", [][2]string{
			{"Owner", ui.Addr(s.caller.Hex())},
			{"Spender", ui.Addr(spender.Hex())},
			{"Amount", amount.String()},
		}, func(ctx context.Context, opts *erc20.TxOpts) (*erc20.Receipt, error) {
			return s.token.Approve(ctx, opts, spender, amount)
		})
	},
}

var transferFromCmd = &cobra.Command{
	Use:   "transfer-from <from> <to> <amount>",
	Short: "Spend an allowance: move tokens from another account",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		from, err := s.account(args[0])
		if err != nil {
			return err
		}
		to, err := s.account(args[1])
		if err != nil {
			return err
		}
		amount, err := s.amount(cmd.Context(), args[2])
		if err != nil {
			return err
		}
		return s.send(cmd.Context(), "Transfer From", [][2]string{
			{"Spender", ui.Addr(s.caller.Hex())},
			{"From", ui.Addr(from.Hex())},
			{"To", ui.Addr(to.Hex())},
			{"Amount", amount.String()},
		}, func(ctx context.Context, opts *erc20.TxOpts) (*erc20.Receipt, error) {
			return s.token.TransferFrom(ctx, opts, from, to, amount)
		})
	},
}

// send runs one write as the session caller. Writes to remote networks are
// confirmed first unless --yes is given.
func (s *session) send(ctx context.Context, title string, preview [][2]string, write func(context.Context, *erc20.TxOpts) (*erc20.Receipt, error)) error {
	if s.caller == (common.Address{}) {
		return errNoCaller
	}
	preview = append(preview, [2]string{"Backend", s.label})
	fmt.Println(ui.KeyValueBlock(title, preview))

	if !s.local() && !s.network.Local && !yesFlag {
		if !ui.Confirm("Broadcast this transaction?") {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, config.ReceiptTimeout)
	defer cancel()

	var spin *ui.Spinner
	if !s.local() {
		spin = ui.NewSpinner("Waiting for the transaction to be mined...")
		spin.Start()
	}
	rcpt, err := write(ctx, &erc20.TxOpts{From: s.caller})
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}
	if err := s.commit(); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"op":    title,
		"tx":    rcpt.TxHash.Hex(),
		"block": rcpt.BlockNumber,
	}).Debug("write included")
	fmt.Println(ui.Success(fmt.Sprintf("Included in block %d", rcpt.BlockNumber)))
	fmt.Println(ui.Meta("  tx " + rcpt.TxHash.Hex()))
	for _, ev := range rcpt.Events {
		fmt.Println("  " + s.describe(ev))
	}
	if s.network != nil {
		if url := s.network.TxURL(rcpt.TxHash.Hex()); url != "" {
			fmt.Println(ui.Hint(url))
		}
	}
	return nil
}

// describe renders an event with account labels.
func (s *session) describe(ev erc20.Event) string {
	switch ev.Kind {
	case erc20.KindApproval:
		return fmt.Sprintf("%s owner=%s spender=%s tokens=%s",
			ui.Symbol(string(ev.Kind)), ui.Addr(s.name(ev.Owner())), ui.Addr(s.name(ev.Spender())), ev.Tokens)
	default:
		return fmt.Sprintf("%s from=%s to=%s tokens=%s",
			ui.Symbol(string(ev.Kind)), ui.Addr(s.name(ev.From)), ui.Addr(s.name(ev.To)), ev.Tokens)
	}
}

// format renders a raw amount with the token's decimals and symbol. If the
// metadata cannot be read the raw amount is shown.
func (s *session) format(ctx context.Context, amt *big.Int) string {
	md, err := erc20.FetchMetadata(ctx, s.token)
	if err != nil {
		return amt.String()
	}
	return ui.Val(erc20.FormatUnits(amt, md.Decimals)) + " " + ui.Symbol(md.Symbol) + " " + ui.Meta("("+amt.String()+")")
}

func init() {
	for _, c := range []*cobra.Command{transferCmd, approveCmd, transferFromCmd} {
		c.Flags().BoolVar(&unitsFlag, "units", false, "amounts are whole tokens scaled by decimals (default: raw units)")
		c.Flags().BoolVarP(&yesFlag, "yes", "y", false, "skip the confirmation prompt")
	}
}
