package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/Mohsinsiddi/tkn/internal/chain"
	"github.com/Mohsinsiddi/tkn/internal/config"
	"github.com/Mohsinsiddi/tkn/internal/contract"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ledger"
	"github.com/Mohsinsiddi/tkn/internal/store"
	"github.com/Mohsinsiddi/tkn/internal/ui"
	"github.com/Mohsinsiddi/tkn/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var errNoCaller = errors.New("no wallet selected; pass --wallet or set a default with `tkn wallet use <name>`")

// session is the token a command operates on: a local ledger from the
// database or a contract on a network.
type session struct {
	token  erc20.Token
	label  string
	caller common.Address // TxOpts.From for writes

	known  []common.Address
	labels map[common.Address]string

	// local ledgers
	id     string
	ledger *ledger.Token
	db     *store.DB

	// networks
	network  *chain.Network
	contract *contract.Token
}

// openSession resolves the token selected by --local, --network and
// --token. Close it when done.
func openSession(ctx context.Context) (*session, error) {
	if localID != "" {
		return openLocal(localID)
	}
	return openNetwork(ctx)
}

func openLocal(id string) (*session, error) {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	tok, err := db.Load(id)
	if err != nil {
		db.Close()
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, fmt.Errorf("no local ledger %q; create one with `tkn deploy --local %s`", id, id)
		}
		return nil, err
	}
	s := &session{
		token:  ledger.Bind(tok),
		label:  "local:" + id,
		caller: tok.Deployer(),
		labels: make(map[common.Address]string),
		id:     id,
		ledger: tok,
		db:     db,
	}
	if err := s.addDevAccounts(); err != nil {
		db.Close()
		return nil, err
	}
	if walletFlag != "" {
		if s.caller, err = s.account(walletFlag); err != nil {
			db.Close()
			return nil, err
		}
	}
	logger.WithField("id", id).Debug("local ledger loaded")
	return s, nil
}

func openNetwork(ctx context.Context) (*session, error) {
	net, err := currentNetwork()
	if err != nil {
		return nil, err
	}
	client := newClient(net)
	addr, err := resolveTokenAddress(net)
	if err != nil {
		return nil, err
	}
	tok := contract.NewToken(client, addr)
	s := &session{
		token:    tok,
		label:    net.Name,
		labels:   make(map[common.Address]string),
		network:  net,
		contract: tok,
	}

	mgr := newWalletManager()
	wallets, err := mgr.List()
	if err != nil {
		return nil, err
	}
	for _, w := range wallets {
		a := common.HexToAddress(w.Address)
		s.addAccount(a, w.Name)
		if w.Type == wallet.TypeSigning {
			tok.AddSigner(wallet.NewSigner(w, mgr.Keystore()))
		}
	}
	switch {
	case walletFlag != "":
		if s.caller, err = s.account(walletFlag); err != nil {
			return nil, err
		}
	case cfg.DefaultWallet != "":
		w, err := mgr.Get(cfg.DefaultWallet)
		if err != nil {
			return nil, fmt.Errorf("default wallet %q: %w", cfg.DefaultWallet, err)
		}
		s.caller = common.HexToAddress(w.Address)
	default:
		if w := mgr.Default(); w != nil {
			s.caller = common.HexToAddress(w.Address)
		}
	}

	vctx, cancel := context.WithTimeout(ctx, config.RPCTimeout)
	defer cancel()
	if err := tok.Verify(vctx); err != nil {
		return nil, fmt.Errorf("token %s on %s: %w", addr.Hex(), net.Name, err)
	}
	logger.WithFields(logrus.Fields{"network": net.Name, "token": addr.Hex()}).Debug("token bound")
	return s, nil
}

// Close releases the local database, if any.
func (s *session) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// commit persists a local ledger after a write.
func (s *session) commit() error {
	if s.ledger == nil {
		return nil
	}
	return s.db.Save(s.id, s.ledger)
}

// local reports whether the token is an in-process ledger. Local networks
// (ganache) do not count.
func (s *session) local() bool { return s.ledger != nil }

func (s *session) addAccount(a common.Address, label string) {
	if _, ok := s.labels[a]; ok {
		return
	}
	s.labels[a] = label
	s.known = append(s.known, a)
}

func (s *session) addDevAccounts() error {
	devs, err := wallet.DevAddresses(wallet.DevAccountCount)
	if err != nil {
		return err
	}
	for i, a := range devs {
		s.addAccount(a, fmt.Sprintf("accounts[%d]", i))
	}
	return nil
}

var accountIndexRe = regexp.MustCompile(`^accounts\[(\d+)\]$`)

// account resolves an account reference: a hex address, accounts[i] (or a
// bare index) for the dev accounts, or a wallet name.
func (s *session) account(ref string) (common.Address, error) {
	ref = strings.TrimSpace(ref)
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	idx := ref
	if m := accountIndexRe.FindStringSubmatch(ref); m != nil {
		idx = m[1]
	}
	if i, err := strconv.Atoi(idx); err == nil {
		devs, err := wallet.DevAddresses(wallet.DevAccountCount)
		if err != nil {
			return common.Address{}, err
		}
		if i < 0 || i >= len(devs) {
			return common.Address{}, fmt.Errorf("account index %d out of range (0-%d)", i, len(devs)-1)
		}
		return devs[i], nil
	}
	for a, label := range s.labels {
		if label == ref {
			return a, nil
		}
	}
	w, err := newWalletManager().Get(ref)
	if err != nil {
		return common.Address{}, fmt.Errorf("%q is not an address, account index or wallet name", ref)
	}
	return common.HexToAddress(w.Address), nil
}

// name returns the label of a known account, or its shortened address.
func (s *session) name(a common.Address) string {
	if l, ok := s.labels[a]; ok {
		return l
	}
	return ui.TruncateAddr(a.Hex())
}

// events lists past events of the token, optionally filtered.
func (s *session) events(ctx context.Context, f ledger.Filter) ([]erc20.Event, error) {
	if s.ledger != nil {
		return s.ledger.Events(f), nil
	}
	var to *uint64
	if f.ToBlock != 0 {
		to = &f.ToBlock
	}
	evs, err := s.contract.FilterEvents(ctx, f.FromBlock, to)
	if err != nil {
		return nil, err
	}
	out := evs[:0]
	for _, ev := range evs {
		if f.Kind != "" && ev.Kind != f.Kind {
			continue
		}
		if f.Address != nil && ev.From != *f.Address && ev.To != *f.Address {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// amount parses a CLI amount. With --units it is in whole tokens and
// scaled by the token's decimals; otherwise it is raw base units, which
// also accepts "1e18" and "1 ether".
func (s *session) amount(ctx context.Context, raw string) (*big.Int, error) {
	if !unitsFlag {
		return erc20.ParseAmount(raw)
	}
	dec, err := s.token.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	return erc20.ParseUnits(raw, dec)
}

// currentNetwork returns the network named by --network or the config.
func currentNetwork() (*chain.Network, error) {
	name := networkFlag
	if name == "" {
		name = cfg.DefaultNetwork
	}
	net, err := cfg.Registry().GetByName(name)
	if err != nil {
		return nil, fmt.Errorf("unknown network %q; run `tkn network list`", name)
	}
	return net, nil
}

func newClient(net *chain.Network) *chain.EVMClient {
	c := chain.NewEVMClient(net.RPC)
	if net.Local {
		c.PollInterval = config.LocalReceiptPoll
	}
	return c
}

// resolveTokenAddress finds the contract from --token, default_token or,
// failing both, the Truffle artifact's networks map.
func resolveTokenAddress(net *chain.Network) (common.Address, error) {
	ref := tokenFlag
	if ref == "" {
		ref = cfg.DefaultToken
	}
	if ref != "" {
		reg := contract.NewRegistry(cfg.DeploymentsPath())
		if err := reg.Load(); err != nil {
			return common.Address{}, err
		}
		return reg.Resolve(ref, net.Name)
	}
	if cfg.Artifact != "" {
		art, err := contract.LoadArtifact(cfg.Artifact)
		if err != nil {
			return common.Address{}, err
		}
		if addr, ok := art.Address(strconv.FormatInt(net.ChainID, 10)); ok {
			return addr, nil
		}
	}
	return common.Address{}, fmt.Errorf("no token selected on %s; pass --token or deploy one with `tkn deploy`", net.Name)
}

// newWalletManager creates a Manager backed by the config-dir JSON store
// and the OS keychain.
func newWalletManager() *wallet.Manager {
	return wallet.NewManager(
		wallet.WithStore(wallet.NewJSONStore(cfg.WalletsPath())),
		wallet.WithKeystore(wallet.DefaultKeystore(cfg.KeysDir())),
	)
}
