package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/contract"
	"github.com/Mohsinsiddi/tkn/internal/devchain"
	"github.com/Mohsinsiddi/tkn/internal/harness"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/Mohsinsiddi/tkn/internal/wallet"
	"github.com/spf13/cobra"
)

const (
	backendLocal    = "local"
	backendDevchain = "devchain"
	backendNetwork  = "network"
)

var (
	testBackend  string
	testSigners  []string
	testArtifact string
	testRun      string
	testJSON     bool
)

var testCmd = &cobra.Command{
	Use:   "test [scenarios.yaml]",
	Short: "Run token scenarios against a backend",
	Long: `Run scenarios that deploy a fresh token, apply transfers, approvals and
transferFroms, and check balances, allowances, errors and events.

Without a file the built-in suite runs. Backends:
  local     in-process ledger (default)
  devchain  the contract client against an in-memory chain
  network   the contract client against --network, deploying from
            --artifact and signing with --signers (accounts[0], [1], ...)`,
	Example: `  tkn test
  tkn test --backend devchain
  tkn test my-scenarios.yaml --run approve
  tkn test --backend network --network ganache --signers alice,bob,carol`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scs := harness.Builtin()
		if len(args) == 1 {
			var err error
			if scs, err = harness.LoadScenarios(args[0]); err != nil {
				return err
			}
		}
		if testRun != "" {
			kept := scs[:0]
			for _, sc := range scs {
				if strings.Contains(strings.ToLower(sc.Name), strings.ToLower(testRun)) {
					kept = append(kept, sc)
				}
			}
			scs = kept
		}
		if len(scs) == 0 {
			return fmt.Errorf("no scenarios to run")
		}

		d, err := newTestDeployer()
		if err != nil {
			return err
		}
		rep := harness.NewRunner(d, logger).RunAll(cmd.Context(), scs)

		if testJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
		} else {
			printReport(rep)
		}
		if !rep.OK() {
			return fmt.Errorf("%d of %d scenario(s) failed", rep.Failed, len(rep.Results))
		}
		return nil
	},
}

func newTestDeployer() (harness.Deployer, error) {
	switch testBackend {
	case backendLocal:
		return harness.NewLocalDeployer(wallet.DevAccountCount)

	case backendDevchain:
		devs, err := wallet.DevAccounts(wallet.DevAccountCount)
		if err != nil {
			return nil, err
		}
		signers := make([]wallet.TxSigner, len(devs))
		for i, a := range devs {
			signers[i] = a.Signer()
		}
		return harness.NewChainDeployer(backendDevchain, devchain.New(devchain.DefaultChainID), devchain.Artifact(), signers...)

	case backendNetwork:
		net, err := currentNetwork()
		if err != nil {
			return nil, err
		}
		path := testArtifact
		if path == "" {
			path = cfg.Artifact
		}
		if path == "" {
			return nil, fmt.Errorf("the network backend needs --artifact or the artifact config key")
		}
		art, err := contract.LoadArtifact(path)
		if err != nil {
			return nil, err
		}
		signers, err := testSignerList()
		if err != nil {
			return nil, err
		}
		return harness.NewChainDeployer(net.Name, newClient(net), art, signers...)
	}
	return nil, fmt.Errorf("unknown backend %q (local, devchain or network)", testBackend)
}

// testSignerList maps --signers (or every signing wallet, by name) onto
// accounts[0..n-1].
func testSignerList() ([]wallet.TxSigner, error) {
	mgr := newWalletManager()
	names := testSigners
	if len(names) == 0 {
		all, err := mgr.List()
		if err != nil {
			return nil, err
		}
		for _, w := range all {
			if w.Type == wallet.TypeSigning {
				names = append(names, w.Name)
			}
		}
	}
	out := make([]wallet.TxSigner, 0, len(names))
	for _, name := range names {
		w, err := mgr.Get(name)
		if err != nil {
			return nil, fmt.Errorf("signer %q: %w", name, err)
		}
		if w.Type != wallet.TypeSigning {
			return nil, fmt.Errorf("signer %q is watch-only", name)
		}
		out = append(out, wallet.NewSigner(w, mgr.Keystore()))
	}
	return out, nil
}

func printReport(rep *harness.Report) {
	t := ui.NewTable(
		ui.Column{Title: "Scenario"},
		ui.Column{Title: "Result"},
		ui.Column{Title: "Time", Right: true},
		ui.Column{Title: "Failure"},
	)
	for _, r := range rep.Results {
		result := ui.StyleSuccess.Render("pass")
		failure := ""
		if !r.Passed {
			result = ui.StyleError.Render("FAIL")
			failure = r.Failure
			if r.Step > 0 {
				failure = fmt.Sprintf("step %d: %s", r.Step, r.Failure)
			}
		}
		t.AddRow(r.Name, result, ui.Meta(r.Duration.Round(time.Microsecond).String()), failure)
	}
	fmt.Println(t.Render())
	summary := fmt.Sprintf("%d passed, %d failed on %s", rep.Passed, rep.Failed, rep.Backend)
	if rep.OK() {
		fmt.Println(ui.Success(summary))
	} else {
		fmt.Println(ui.Err(summary))
	}
}

func init() {
	f := testCmd.Flags()
	f.StringVar(&testBackend, "backend", backendLocal, "local, devchain or network")
	f.StringSliceVar(&testSigners, "signers", nil, "wallet names used as accounts[0], [1], ... on a network")
	f.StringVar(&testArtifact, "artifact", "", "compiled ERC20Token artifact (default: config artifact)")
	f.StringVar(&testRun, "run", "", "only scenarios whose name contains this")
	f.BoolVar(&testJSON, "json", false, "print the report as JSON")
}
