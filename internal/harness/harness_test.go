package harness

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mohsinsiddi/tkn/internal/devchain"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func localRunner(t *testing.T) *Runner {
	t.Helper()
	d, err := NewLocalDeployer(wallet.DevAccountCount)
	require.NoError(t, err)
	return NewRunner(d, nil)
}

func requirePassed(t *testing.T, rep *Report) {
	t.Helper()
	for _, r := range rep.Results {
		assert.True(t, r.Passed, "%s: step %d: %s", r.Name, r.Step, r.Failure)
	}
	require.True(t, rep.OK())
}

func TestBuiltinSuiteParses(t *testing.T) {
	scs := Builtin()
	require.GreaterOrEqual(t, len(scs), 6)
	assert.Equal(t, "Should return the total supply", scs[0].Name)
}

func TestBuiltinSuiteLocal(t *testing.T) {
	rep := localRunner(t).RunAll(ctx, Builtin())
	requirePassed(t, rep)
	assert.Equal(t, "local", rep.Backend)
	assert.Equal(t, len(Builtin()), rep.Passed)
}

func TestBuiltinSuiteOnDevChain(t *testing.T) {
	accts, err := wallet.DevAccounts(3)
	require.NoError(t, err)
	signers := make([]wallet.TxSigner, len(accts))
	for i, a := range accts {
		signers[i] = a.Signer()
	}
	d, err := NewChainDeployer("devchain", devchain.New(devchain.DefaultChainID), devchain.Artifact(), signers...)
	require.NoError(t, err)

	rep := NewRunner(d, nil).RunAll(ctx, Builtin())
	requirePassed(t, rep)
	for _, r := range rep.Results {
		assert.NotEmpty(t, r.Token)
	}
}

func TestChainDeployerNeedsSigner(t *testing.T) {
	_, err := NewChainDeployer("x", devchain.New(1), devchain.Artifact())
	assert.Error(t, err)
}

// The suite as first written expected an "Approva" event and a transfer to
// accounts[2]; both must be reported as failures.
func TestReportsWrongEventExpectations(t *testing.T) {
	src := `
- name: misspelled event
  steps:
    - op: approve
      spender: 1
      amount: "100"
      expect:
        events: [{event: Approva, tokenOwner: 0, spender: 1, tokens: "100"}]
- name: wrong recipient
  steps:
    - {op: approve, spender: 1, amount: "100"}
    - op: transferFrom
      caller: 1
      from: 0
      to: 1
      amount: "100"
      expect:
        events: [{event: Transfer, from: 0, to: 2, tokens: "100"}]
`
	scs, err := ParseScenarios(strings.NewReader(src))
	require.NoError(t, err)

	rep := localRunner(t).RunAll(ctx, scs)
	assert.Equal(t, 2, rep.Failed)
	assert.False(t, rep.OK())

	assert.Equal(t, 1, rep.Results[0].Step)
	assert.Contains(t, rep.Results[0].Failure, "no matching Approva event")
	assert.Equal(t, 2, rep.Results[1].Step)
	assert.Contains(t, rep.Results[1].Failure, "Transfer(from=")
}

func TestReportsUnexpectedSuccessAndWrongBalance(t *testing.T) {
	src := `
- name: expects revert
  steps:
    - op: transfer
      to: 1
      amount: "1"
      expect: {error: Token balance too low}
- name: wrong balance
  steps:
    - op: transfer
      to: 1
      amount: "1"
      expect: {balances: {1: "2"}}
- name: revert kind
  steps:
    - op: transferFrom
      from: 0
      to: 1
      amount: "1"
      expect: {error: InsufficientAllowance}
`
	scs, err := ParseScenarios(strings.NewReader(src))
	require.NoError(t, err)
	rep := localRunner(t).RunAll(ctx, scs)

	assert.Contains(t, rep.Results[0].Failure, "succeeded, expected revert")
	assert.Contains(t, rep.Results[1].Failure, "balanceOf(accounts[1]) = 1, want 2")
	assert.True(t, rep.Results[2].Passed, rep.Results[2].Failure)
}

func TestCustomTokenParams(t *testing.T) {
	src := `
- name: six decimals
  token: {name: USD Coin, symbol: USDC, decimals: 6, initial_supply: "1000000"}
  expect:
    total_supply: "1000000"
    balances: {0: "1000000"}
`
	scs, err := ParseScenarios(strings.NewReader(src))
	require.NoError(t, err)
	requirePassed(t, localRunner(t).RunAll(ctx, scs))
}

func TestUnknownAccountFails(t *testing.T) {
	d, err := NewLocalDeployer(2)
	require.NoError(t, err)
	scs, err := ParseScenarios(strings.NewReader(`[{name: x, steps: [{op: transfer, to: 5, amount: "1"}]}]`))
	require.NoError(t, err)
	rep := NewRunner(d, nil).RunAll(ctx, scs)
	assert.Contains(t, rep.Results[0].Failure, "accounts[5] does not exist")
}

func TestParseScenariosErrors(t *testing.T) {
	cases := map[string]string{
		"unknown op":    `[{name: x, steps: [{op: mint, amount: "1"}]}]`,
		"no amount":     `[{name: x, steps: [{op: transfer, to: 1}]}]`,
		"no name":       `[{steps: []}]`,
		"bare check":    `[{name: x, steps: [{op: check}]}]`,
		"unknown field": `[{name: x, colour: red}]`,
		"final events":  `[{name: x, expect: {events: [{event: Transfer}]}}]`,
		"final error":   `[{name: x, expect: {error: Allowance too low}}]`,
		"check events":  `[{name: x, steps: [{op: check, expect: {events: [{event: Approval}]}}]}]`,
		"empty":         ``,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenarios(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenarios(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`[{name: supply, expect: {total_supply: 1 ether}}]`), 0o600))
	scs, err := LoadScenarios(path)
	require.NoError(t, err)
	require.Len(t, scs, 1)
	assert.Equal(t, "1 ether", scs[0].Expect.TotalSupply)

	_, err = LoadScenarios(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRevertLeavesStateUntouched(t *testing.T) {
	// a deployer whose token mutates state before reporting the revert
	d, err := NewLocalDeployer(3)
	require.NoError(t, err)
	rep := NewRunner(leaky{d}, nil).RunAll(ctx, []Scenario{{
		Name:  "leaky revert",
		Steps: []Step{{Op: OpTransfer, To: 1, Amount: "5", Expect: &Expect{Error: "Token balance too low"}}},
	}})
	require.Len(t, rep.Results, 1)
	assert.Contains(t, rep.Results[0].Failure, "reverted but changed state")
}

type leaky struct{ *LocalDeployer }

func (l leaky) Deploy(ctx context.Context, name, symbol string, decimals uint8, supply *big.Int) (*Instance, error) {
	inst, err := l.LocalDeployer.Deploy(ctx, name, symbol, decimals, supply)
	if err != nil {
		return nil, err
	}
	inst.Token = leakyToken{inst.Token}
	return inst, nil
}

type leakyToken struct{ erc20.Token }

func (l leakyToken) Transfer(ctx context.Context, opts *erc20.TxOpts, to common.Address, amount *big.Int) (*erc20.Receipt, error) {
	if _, err := l.Token.Transfer(ctx, opts, to, amount); err != nil {
		return nil, err
	}
	return nil, erc20.ErrInsufficientBalance
}
