package cmd

import (
	"context"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/binding"
	"github.com/Mohsinsiddi/tkn/internal/log"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live terminal view of token metadata, balances and allowances",
	Long: `Open a terminal dashboard for the selected token.

Network tokens refresh every poll_interval seconds. A local ledger is shown
as loaded; the database is released so other tkn commands can still write
to it. Use 'tkn serve' to watch and write from one process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		if err := s.Close(); err != nil {
			return err
		}

		// Log lines would tear the full-screen view; errors show in the
		// snapshot instead.
		var blog log.Logger = log.Discard()
		if verbose {
			blog = logger
		}
		st := newBindingStore(s, blog)
		id, updates := st.Subscribe()
		defer st.Unsubscribe(id)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() {
			if err := st.Start(ctx); err != nil {
				blog.Warnf("initial load: %v", err)
			}
		}()

		_, err = ui.NewDashboard(ui.NewTokenModel("tkn · "+s.label, updates, s.labels)).Run()
		cancel()
		st.Stop()
		return err
	},
}

// newBindingStore tracks every account the session knows about plus any
// account seen in an event.
func newBindingStore(s *session, l log.Logger) *binding.Store {
	var pairs []binding.Pair
	if s.caller != (common.Address{}) {
		for _, a := range s.known {
			if a != s.caller {
				pairs = append(pairs, binding.Pair{Owner: s.caller, Spender: a})
			}
		}
	}
	return binding.New(s.token, binding.Options{
		Accounts:           s.known,
		Allowances:         pairs,
		PollInterval:       time.Duration(cfg.PollInterval) * time.Second,
		TrackEventAccounts: true,
		Logger:             l,
	})
}
