package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ledger"
	"github.com/Mohsinsiddi/tkn/internal/server"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the token page and JSON API in the browser",
	Long: `Serve a page showing the token's metadata and balances, updated live
over a websocket, with forms for transfer, approve and transferFrom.

For a local ledger every write is saved to the database as it happens.
For a network token, writes are signed by whichever configured signing
wallet matches the caller.`,
	Example: `  tkn serve --local demo
  tkn serve --network ganache --token TKN --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		addr := serveAddr
		if addr == "" {
			addr = cfg.ServeAddr
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		var wg sync.WaitGroup
		if s.local() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				persistLedger(ctx, s)
			}()
		}

		st := newBindingStore(s, logger)
		if err := st.Start(ctx); err != nil {
			logger.WithError(err).Warn("initial load failed; retrying in the background")
		}
		defer st.Stop()

		srv := server.New(st, server.Config{
			Addr:    addr,
			Network: s.label,
			Events: server.EventSourceFunc(func(ctx context.Context, kind erc20.EventKind) ([]erc20.Event, error) {
				return s.events(ctx, ledger.Filter{Kind: kind})
			}),
			Logger: logger,
		})
		fmt.Println(ui.Success(fmt.Sprintf("Serving %s on http://%s", s.label, addr)))
		fmt.Println(ui.Hint("Press Ctrl+C to stop."))

		err = srv.Run(ctx)
		cancel()
		wg.Wait()
		return err
	},
}

// persistLedger saves a local ledger after every event until ctx is done.
func persistLedger(ctx context.Context, s *session) {
	evs := make(chan erc20.Event, 16)
	sub := s.ledger.SubscribeEvents(evs)
	defer sub.Unsubscribe()
	for {
		select {
		case <-evs:
			if err := s.commit(); err != nil {
				logger.WithError(err).Error("saving ledger")
			}
		case <-sub.Err():
			return
		case <-ctx.Done():
			return
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: config serve_addr)")
}
