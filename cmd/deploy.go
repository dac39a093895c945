package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/config"
	"github.com/Mohsinsiddi/tkn/internal/contract"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ledger"
	"github.com/Mohsinsiddi/tkn/internal/store"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/Mohsinsiddi/tkn/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	deployName     string
	deploySymbol   string
	deployDecimals uint8
	deploySupply   string
	deployArtifact string
	deployAlias    string
	deployForce    bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Create a token: a local ledger or a contract on a network",
	Long: `Create a token holding the whole initial supply in the deployer's account.

With --local <id> the token is an in-process ledger saved under id; the
deployer is accounts[0] unless --wallet says otherwise.

Otherwise the ERC20Token contract is deployed from a compiled artifact
(--artifact or the "artifact" config key) by the selected signing wallet,
and recorded in deployments.json under --as (default: the symbol).`,
	Example: `  tkn deploy --local demo
  tkn deploy --local big --supply "1000000 ether" --symbol BIG
  tkn deploy --network ganache --artifact build/contracts/ERC20Token.json --wallet alice`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		supply, err := erc20.ParseAmount(deploySupply)
		if err != nil {
			return fmt.Errorf("--supply: %w", err)
		}
		if localID != "" {
			return deployLocal(localID, supply)
		}
		return deployNetwork(cmd.Context(), supply)
	},
}

func deployLocal(id string, supply *big.Int) error {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()
	if db.Exists(id) && !deployForce {
		return fmt.Errorf("local ledger %q already exists; pass --force to replace it", id)
	}

	s := &session{labels: make(map[common.Address]string)}
	if err := s.addDevAccounts(); err != nil {
		return err
	}
	deployer := s.known[0]
	if walletFlag != "" {
		if deployer, err = s.account(walletFlag); err != nil {
			return err
		}
	}

	tok, err := ledger.New(deployName, deploySymbol, deployDecimals, supply, deployer)
	if err != nil {
		return err
	}
	if err := db.Save(id, tok); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"id": id, "deployer": deployer.Hex()}).Info("local ledger created")

	fmt.Println(ui.Success(fmt.Sprintf("Local token %q created", id)))
	fmt.Println(ui.KeyValueBlock("Token", [][2]string{
		{"Name", ui.Val(tok.Name())},
		{"Symbol", ui.Symbol(tok.Symbol())},
		{"Decimals", fmt.Sprintf("%d", tok.Decimals())},
		{"Total Supply", ui.Val(tok.TotalSupply().String())},
		{"Deployer", ui.Addr(deployer.Hex()) + " " + ui.Meta(s.name(deployer))},
	}))
	fmt.Println(ui.Hint(fmt.Sprintf("Try: tkn balance --local %s", id)))
	return nil
}

func deployNetwork(ctx context.Context, supply *big.Int) error {
	path := deployArtifact
	if path == "" {
		path = cfg.Artifact
	}
	if path == "" {
		return fmt.Errorf("no artifact; pass --artifact or `tkn config set artifact <path>`")
	}
	art, err := contract.LoadArtifact(path)
	if err != nil {
		return err
	}
	if err := art.HasERC20(); err != nil {
		return err
	}

	net, err := currentNetwork()
	if err != nil {
		return err
	}
	signer, w, err := loadSigner()
	if err != nil {
		return err
	}

	alias := deployAlias
	if alias == "" {
		alias = deploySymbol
	}
	fmt.Println(ui.KeyValueBlock("Deploy", [][2]string{
		{"Contract", ui.Val(art.ContractName)},
		{"Name", ui.Val(deployName)},
		{"Symbol", ui.Symbol(deploySymbol)},
		{"Decimals", fmt.Sprintf("%d", deployDecimals)},
		{"Initial Supply", ui.Val(supply.String())},
		{"Deployer", ui.Addr(w.Address) + " " + ui.Meta(w.Name)},
		{"Network", ui.Symbol(net.Name)},
	}))
	if !net.Local && !yesFlag {
		if !ui.Confirm("Deploy this token?") {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, config.ReceiptTimeout)
	defer cancel()
	spin := ui.NewSpinner("Deploying...")
	spin.Start()
	dep, err := contract.Deploy(ctx, newClient(net), signer, art, contract.DeployParams{
		Name:          deployName,
		Symbol:        deploySymbol,
		Decimals:      deployDecimals,
		InitialSupply: supply,
	})
	spin.Stop()
	if err != nil {
		return err
	}

	reg := contract.NewRegistry(cfg.DeploymentsPath())
	if err := reg.Load(); err != nil {
		return err
	}
	reg.Add(&contract.Entry{
		Name:       alias,
		Network:    net.Name,
		Address:    dep.Address.Hex(),
		TxHash:     dep.TxHash.Hex(),
		Deployer:   w.Address,
		DeployedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err := reg.Save(); err != nil {
		return fmt.Errorf("recording deployment: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"network": net.Name,
		"address": dep.Address.Hex(),
		"gas":     dep.GasUsed,
	}).Info("token deployed")

	fmt.Println(ui.Success(fmt.Sprintf("%s deployed at %s (block %d)", deploySymbol, ui.Addr(dep.Address.Hex()), dep.BlockNumber)))
	if url := net.TxURL(dep.TxHash.Hex()); url != "" {
		fmt.Println(ui.Hint(url))
	}
	fmt.Println(ui.Hint(fmt.Sprintf("Use it with: tkn --network %s --token %s info", net.Name, alias)))
	return nil
}

// loadSigner returns the signer for --wallet, the configured default or
// the manager's default wallet. Watch-only wallets are rejected.
func loadSigner() (*wallet.Signer, *wallet.Wallet, error) {
	mgr := newWalletManager()
	name := walletFlag
	if name == "" {
		name = cfg.DefaultWallet
	}
	var w *wallet.Wallet
	if name != "" {
		var err error
		if w, err = mgr.Get(name); err != nil {
			return nil, nil, fmt.Errorf("wallet %q: %w; run `tkn wallet list`", name, err)
		}
	} else if w = mgr.Default(); w == nil {
		return nil, nil, errNoCaller
	}
	if w.Type != wallet.TypeSigning {
		return nil, nil, fmt.Errorf("wallet %q is watch-only and cannot sign\n  Import a key with: tkn wallet import <name> --key <private-key>", w.Name)
	}
	return wallet.NewSigner(w, mgr.Keystore()), w, nil
}

func init() {
	f := deployCmd.Flags()
	f.StringVar(&deployName, "name", config.DefaultTokenName, "token name")
	f.StringVar(&deploySymbol, "symbol", config.DefaultTokenSymbol, "token symbol")
	f.Uint8Var(&deployDecimals, "decimals", config.DefaultTokenDecimals, "token decimals")
	f.StringVar(&deploySupply, "supply", config.DefaultInitialSupply, `initial supply in raw units ("1e18", "1000 ether")`)
	f.StringVar(&deployArtifact, "artifact", "", "compiled ERC20Token artifact (default: config artifact)")
	f.StringVar(&deployAlias, "as", "", "deployment name in deployments.json (default: the symbol)")
	f.BoolVar(&deployForce, "force", false, "replace an existing local ledger")
	f.BoolVarP(&yesFlag, "yes", "y", false, "skip the confirmation prompt")
}
