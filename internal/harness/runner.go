package harness

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/log"
	"github.com/ethereum/go-ethereum/common"
)

// Result is the outcome of one scenario. Step is the 1-based step that
// failed, 0 for the deployment or final checks.
type Result struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Step     int           `json:"step,omitempty"`
	Failure  string        `json:"failure,omitempty"`
	Token    string        `json:"token,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report collects the results of a run.
type Report struct {
	Backend string   `json:"backend"`
	Results []Result `json:"results"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
}

// OK reports whether every scenario passed.
func (r *Report) OK() bool { return r.Failed == 0 }

// Runner executes scenarios against a Deployer.
type Runner struct {
	deployer Deployer
	log      log.Logger
}

// NewRunner returns a runner. A nil logger discards output.
func NewRunner(d Deployer, logger log.Logger) *Runner {
	if logger == nil {
		logger = log.Discard()
	}
	return &Runner{deployer: d, log: logger}
}

// RunAll runs every scenario in order. It stops early only when ctx is done.
func (r *Runner) RunAll(ctx context.Context, scs []Scenario) *Report {
	rep := &Report{Backend: r.deployer.Name()}
	for _, sc := range scs {
		if ctx.Err() != nil {
			break
		}
		res := r.Run(ctx, sc)
		rep.Results = append(rep.Results, res)
		if res.Passed {
			rep.Passed++
		} else {
			rep.Failed++
		}
	}
	return rep
}

// failure is an assertion that did not hold.
type failure struct {
	step int
	msg  string
}

func (f *failure) Error() string { return f.msg }

func failf(step int, format string, args ...interface{}) error {
	return &failure{step: step, msg: fmt.Sprintf(format, args...)}
}

// Run deploys a fresh token and executes sc against it.
func (r *Runner) Run(ctx context.Context, sc Scenario) Result {
	start := time.Now()
	res := Result{Name: sc.Name}
	logger := r.log.WithField("scenario", sc.Name)

	inst, err := r.run(ctx, sc)
	res.Duration = time.Since(start)
	if inst != nil && inst.Address != (common.Address{}) {
		res.Token = inst.Address.Hex()
	}
	if err != nil {
		var f *failure
		if errors.As(err, &f) {
			res.Step = f.step
		}
		res.Failure = err.Error()
		logger.WithField("step", res.Step).Warn(res.Failure)
		return res
	}
	res.Passed = true
	logger.Debug("scenario passed")
	return res
}

func (r *Runner) run(ctx context.Context, sc Scenario) (*Instance, error) {
	p := sc.Token.withDefaults()
	supply, err := erc20.ParseAmount(p.InitialSupply)
	if err != nil {
		return nil, failf(0, "initial_supply: %v", err)
	}
	inst, err := r.deployer.Deploy(ctx, p.Name, p.Symbol, *p.Decimals, supply)
	if err != nil {
		return nil, failf(0, "deploying token: %v", err)
	}
	e := &exec{inst: inst, pairs: allowancePairs(sc)}

	for i, st := range sc.Steps {
		if err := e.step(ctx, i+1, st); err != nil {
			return inst, err
		}
	}
	if sc.Expect != nil {
		if err := e.check(ctx, 0, sc.Expect, nil); err != nil {
			return inst, err
		}
	}
	return inst, nil
}

type exec struct {
	inst  *Instance
	pairs [][2]int
}

func (e *exec) account(step, idx int) (common.Address, error) {
	if idx < 0 || idx >= len(e.inst.Accounts) {
		return common.Address{}, failf(step, "accounts[%d] does not exist (%d accounts)", idx, len(e.inst.Accounts))
	}
	return e.inst.Accounts[idx], nil
}

func (e *exec) step(ctx context.Context, n int, st Step) error {
	if st.Op == OpCheck {
		return e.check(ctx, n, st.Expect, nil)
	}

	amount, err := erc20.ParseAmount(st.Amount)
	if err != nil {
		return failf(n, "amount: %v", err)
	}
	caller, err := e.account(n, st.Caller)
	if err != nil {
		return err
	}
	opts := &erc20.TxOpts{From: caller}

	expectErr := st.Expect != nil && st.Expect.Error != ""
	var before *state
	if expectErr {
		if before, err = e.capture(ctx, n); err != nil {
			return err
		}
	}

	var rcpt *erc20.Receipt
	switch st.Op {
	case OpTransfer:
		to, err := e.account(n, st.To)
		if err != nil {
			return err
		}
		rcpt, err = e.inst.Token.Transfer(ctx, opts, to, amount)
		if err = e.outcome(n, st, err); err != nil {
			return err
		}
	case OpApprove:
		spender, err := e.account(n, st.Spender)
		if err != nil {
			return err
		}
		rcpt, err = e.inst.Token.Approve(ctx, opts, spender, amount)
		if err = e.outcome(n, st, err); err != nil {
			return err
		}
	case OpTransferFrom:
		from, err := e.account(n, st.From)
		if err != nil {
			return err
		}
		to, err := e.account(n, st.To)
		if err != nil {
			return err
		}
		rcpt, err = e.inst.Token.TransferFrom(ctx, opts, from, to, amount)
		if err = e.outcome(n, st, err); err != nil {
			return err
		}
	}

	if expectErr {
		after, err := e.capture(ctx, n)
		if err != nil {
			return err
		}
		if diff := before.diff(after); diff != "" {
			return failf(n, "%s reverted but changed state: %s", st.Op, diff)
		}
	}
	if e.inst.Audit != nil {
		if err := e.inst.Audit(); err != nil {
			return failf(n, "invariant violated after %s: %v", st.Op, err)
		}
	}
	if st.Expect != nil {
		return e.check(ctx, n, st.Expect, rcpt)
	}
	return nil
}

// outcome compares the error of an operation with the expected revert.
func (e *exec) outcome(n int, st Step, err error) error {
	want := ""
	if st.Expect != nil {
		want = st.Expect.Error
	}
	switch {
	case want == "" && err != nil:
		return failf(n, "%s failed: %v", st.Op, err)
	case want != "" && err == nil:
		return failf(n, "%s succeeded, expected revert %q", st.Op, want)
	case want != "" && !matchesRevert(err, want):
		return failf(n, "%s reverted with %q, expected %q", st.Op, err.Error(), want)
	}
	return nil
}

func matchesRevert(err error, want string) bool {
	switch want {
	case "InsufficientBalance":
		return errors.Is(err, erc20.ErrInsufficientBalance)
	case "InsufficientAllowance":
		return errors.Is(err, erc20.ErrInsufficientAllowance)
	}
	return strings.Contains(err.Error(), want)
}

func (e *exec) check(ctx context.Context, n int, x *Expect, rcpt *erc20.Receipt) error {
	tok := e.inst.Token
	if x.TotalSupply != "" {
		want, err := erc20.ParseAmount(x.TotalSupply)
		if err != nil {
			return failf(n, "total_supply: %v", err)
		}
		got, err := tok.TotalSupply(ctx)
		if err != nil {
			return failf(n, "totalSupply(): %v", err)
		}
		if got.Cmp(want) != 0 {
			return failf(n, "totalSupply() = %s, want %s", got, want)
		}
	}
	for _, idx := range sortedKeys(x.Balances) {
		addr, err := e.account(n, idx)
		if err != nil {
			return err
		}
		want, err := erc20.ParseAmount(x.Balances[idx])
		if err != nil {
			return failf(n, "balance of accounts[%d]: %v", idx, err)
		}
		got, err := tok.BalanceOf(ctx, addr)
		if err != nil {
			return failf(n, "balanceOf(accounts[%d]): %v", idx, err)
		}
		if got.Cmp(want) != 0 {
			return failf(n, "balanceOf(accounts[%d]) = %s, want %s", idx, got, want)
		}
	}
	for _, a := range x.Allowances {
		owner, err := e.account(n, a.Owner)
		if err != nil {
			return err
		}
		spender, err := e.account(n, a.Spender)
		if err != nil {
			return err
		}
		want, err := erc20.ParseAmount(a.Amount)
		if err != nil {
			return failf(n, "allowance amount: %v", err)
		}
		got, err := tok.Allowance(ctx, owner, spender)
		if err != nil {
			return failf(n, "allowance(accounts[%d], accounts[%d]): %v", a.Owner, a.Spender, err)
		}
		if got.Cmp(want) != 0 {
			return failf(n, "allowance(accounts[%d], accounts[%d]) = %s, want %s", a.Owner, a.Spender, got, want)
		}
	}
	for _, want := range x.Events {
		if rcpt == nil {
			return failf(n, "expected %s event but no transaction was sent", want.Event)
		}
		if err := e.findEvent(n, rcpt, want); err != nil {
			return err
		}
	}
	return nil
}

func (e *exec) findEvent(n int, rcpt *erc20.Receipt, want EventExpect) error {
	from, to := want.From, want.To
	if want.TokenOwner != nil {
		from = want.TokenOwner
	}
	if want.Spender != nil {
		to = want.Spender
	}
	var tokens *big.Int
	if want.Tokens != "" {
		v, err := erc20.ParseAmount(want.Tokens)
		if err != nil {
			return failf(n, "event tokens: %v", err)
		}
		tokens = v
	}

	for _, ev := range rcpt.Events {
		if string(ev.Kind) != want.Event {
			continue
		}
		if !e.is(from, ev.From) || !e.is(to, ev.To) {
			continue
		}
		if tokens != nil && (ev.Tokens == nil || ev.Tokens.Cmp(tokens) != 0) {
			continue
		}
		return nil
	}
	got := make([]string, len(rcpt.Events))
	for i, ev := range rcpt.Events {
		got[i] = ev.String()
	}
	return failf(n, "no matching %s event; emitted [%s]", want.Event, strings.Join(got, ", "))
}

// is reports whether addr is accounts[*idx]; a nil idx matches anything.
func (e *exec) is(idx *int, addr common.Address) bool {
	if idx == nil {
		return true
	}
	return *idx >= 0 && *idx < len(e.inst.Accounts) && e.inst.Accounts[*idx] == addr
}

// state is the part of the token a reverted step must leave untouched.
type state struct {
	supply     *big.Int
	balances   []*big.Int
	allowances map[[2]int]*big.Int
}

func (e *exec) capture(ctx context.Context, n int) (*state, error) {
	tok := e.inst.Token
	supply, err := tok.TotalSupply(ctx)
	if err != nil {
		return nil, failf(n, "totalSupply(): %v", err)
	}
	s := &state{supply: supply, allowances: make(map[[2]int]*big.Int, len(e.pairs))}
	for i, a := range e.inst.Accounts {
		bal, err := tok.BalanceOf(ctx, a)
		if err != nil {
			return nil, failf(n, "balanceOf(accounts[%d]): %v", i, err)
		}
		s.balances = append(s.balances, bal)
	}
	for _, p := range e.pairs {
		owner, err := e.account(n, p[0])
		if err != nil {
			return nil, err
		}
		spender, err := e.account(n, p[1])
		if err != nil {
			return nil, err
		}
		v, err := tok.Allowance(ctx, owner, spender)
		if err != nil {
			return nil, failf(n, "allowance: %v", err)
		}
		s.allowances[p] = v
	}
	return s, nil
}

func (s *state) diff(o *state) string {
	if s.supply.Cmp(o.supply) != 0 {
		return fmt.Sprintf("totalSupply %s -> %s", s.supply, o.supply)
	}
	for i := range s.balances {
		if s.balances[i].Cmp(o.balances[i]) != 0 {
			return fmt.Sprintf("balanceOf(accounts[%d]) %s -> %s", i, s.balances[i], o.balances[i])
		}
	}
	for p, v := range s.allowances {
		if v.Cmp(o.allowances[p]) != 0 {
			return fmt.Sprintf("allowance(accounts[%d], accounts[%d]) %s -> %s", p[0], p[1], v, o.allowances[p])
		}
	}
	return ""
}

// allowancePairs lists every owner/spender pair a scenario touches.
func allowancePairs(sc Scenario) [][2]int {
	seen := make(map[[2]int]bool)
	var out [][2]int
	add := func(owner, spender int) {
		p := [2]int{owner, spender}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, st := range sc.Steps {
		switch st.Op {
		case OpApprove:
			add(st.Caller, st.Spender)
		case OpTransferFrom:
			add(st.From, st.Caller)
		}
		if st.Expect != nil {
			for _, a := range st.Expect.Allowances {
				add(a.Owner, a.Spender)
			}
		}
	}
	return out
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
