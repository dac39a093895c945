// Package harness runs ERC-20 scenarios: each one deploys a fresh token,
// applies a list of steps and checks balances, allowances, reverts and
// emitted events after each of them.
package harness

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Mohsinsiddi/tkn/internal/config"
	"gopkg.in/yaml.v3"
)

// Step operations.
const (
	OpTransfer     = "transfer"
	OpApprove      = "approve"
	OpTransferFrom = "transferFrom"
	OpCheck        = "check"
)

// Scenario is one independent test case.
type Scenario struct {
	Name   string      `yaml:"name"`
	Token  TokenParams `yaml:"token"`
	Steps  []Step      `yaml:"steps"`
	Expect *Expect     `yaml:"expect"` // checked after all steps
}

// TokenParams are the constructor arguments. Zero values take the defaults
// ("My Token", "TKN", 18, 1 ether).
type TokenParams struct {
	Name          string `yaml:"name"`
	Symbol        string `yaml:"symbol"`
	Decimals      *uint8 `yaml:"decimals"`
	InitialSupply string `yaml:"initial_supply"`
}

// Step is one operation. Accounts are indexes into the deployer's accounts;
// the caller defaults to accounts[0], the deployer.
type Step struct {
	Op      string  `yaml:"op"`
	Caller  int     `yaml:"caller"`
	From    int     `yaml:"from"`    // transferFrom source
	To      int     `yaml:"to"`      // transfer/transferFrom recipient
	Spender int     `yaml:"spender"` // approve
	Amount  string  `yaml:"amount"`
	Expect  *Expect `yaml:"expect"`
}

// Expect lists what must hold after a step. Error names the revert reason
// ("Token balance too low") and means the step must fail and change nothing.
type Expect struct {
	Error       string            `yaml:"error"`
	TotalSupply string            `yaml:"total_supply"`
	Balances    map[int]string    `yaml:"balances"`
	Allowances  []AllowanceExpect `yaml:"allowances"`
	Events      []EventExpect     `yaml:"events"`
}

// AllowanceExpect is an expected allowance(owner, spender).
type AllowanceExpect struct {
	Owner   int    `yaml:"owner"`
	Spender int    `yaml:"spender"`
	Amount  string `yaml:"amount"`
}

// EventExpect matches an emitted event. Unset fields match anything.
// Approval events may use tokenOwner/spender instead of from/to.
type EventExpect struct {
	Event      string `yaml:"event"`
	From       *int   `yaml:"from"`
	To         *int   `yaml:"to"`
	TokenOwner *int   `yaml:"tokenOwner"`
	Spender    *int   `yaml:"spender"`
	Tokens     string `yaml:"tokens"`
}

func (p TokenParams) withDefaults() TokenParams {
	if p.Name == "" {
		p.Name = config.DefaultTokenName
	}
	if p.Symbol == "" {
		p.Symbol = config.DefaultTokenSymbol
	}
	if p.Decimals == nil {
		d := uint8(config.DefaultTokenDecimals)
		p.Decimals = &d
	}
	if p.InitialSupply == "" {
		p.InitialSupply = config.DefaultInitialSupply
	}
	return p
}

// ParseScenarios decodes a YAML list of scenarios.
func ParseScenarios(r io.Reader) ([]Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var scs []Scenario
	if err := dec.Decode(&scs); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("no scenarios")
		}
		return nil, fmt.Errorf("parsing scenarios: %w", err)
	}
	for i, sc := range scs {
		if err := sc.validate(); err != nil {
			return nil, fmt.Errorf("scenario %d (%s): %w", i+1, sc.Name, err)
		}
	}
	return scs, nil
}

// LoadScenarios reads a scenario file.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenarios(bytes.NewReader(data))
}

func (sc Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("missing name")
	}
	for i, st := range sc.Steps {
		switch st.Op {
		case OpTransfer, OpApprove, OpTransferFrom:
			if st.Amount == "" {
				return fmt.Errorf("step %d: %s needs an amount", i+1, st.Op)
			}
		case OpCheck:
			if st.Expect == nil {
				return fmt.Errorf("step %d: check without expect", i+1)
			}
			if err := st.Expect.stateOnly(); err != nil {
				return fmt.Errorf("step %d: check %w", i+1, err)
			}
		default:
			return fmt.Errorf("step %d: unknown op %q", i+1, st.Op)
		}
	}
	if sc.Expect != nil {
		if err := sc.Expect.stateOnly(); err != nil {
			return fmt.Errorf("expect %w", err)
		}
	}
	return nil
}

// stateOnly rejects the expectations that need a transaction to compare
// against; check steps and the final expect only see token state.
func (x *Expect) stateOnly() error {
	if len(x.Events) > 0 {
		return fmt.Errorf("cannot expect events; put them on a transfer, approve or transferFrom step")
	}
	if x.Error != "" {
		return fmt.Errorf("cannot expect an error; put it on a transfer, approve or transferFrom step")
	}
	return nil
}
