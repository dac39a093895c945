// Package binding mirrors an ERC-20 token into observable snapshots for
// the dashboard and the browser page. A Store is created explicitly, loads
// the token once on Start and then refreshes whenever the token emits an
// event (or on a poll ticker when the source cannot be watched).
package binding

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	defaultPoll = 2 * time.Second
	eventBuffer = 64
)

var (
	ErrNotStarted     = errors.New("binding store not started")
	ErrAlreadyStarted = errors.New("binding store already started")
)

// Pair identifies a tracked allowance.
type Pair struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
}

// Allowance is a tracked allowance with its current amount.
type Allowance struct {
	Pair
	Amount *big.Int `json:"amount"`
}

// Snapshot is an immutable view of the token. Until Initialized is true the
// metadata fields are empty and views should show a loading placeholder.
type Snapshot struct {
	Initialized bool                        `json:"initialized"`
	Name        string                      `json:"name"`
	Symbol      string                      `json:"symbol"`
	Decimals    uint8                       `json:"decimals"`
	TotalSupply *big.Int                    `json:"totalSupply"`
	Balances    map[common.Address]*big.Int `json:"balances"`
	Allowances  []Allowance                 `json:"allowances"`
	LastError   string                      `json:"lastError,omitempty"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
}

// Accounts returns the addresses in Balances, sorted.
func (s Snapshot) Accounts() []common.Address {
	out := make([]common.Address, 0, len(s.Balances))
	for a := range s.Balances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Options configure a Store.
type Options struct {
	Accounts     []common.Address
	Allowances   []Pair
	PollInterval time.Duration
	// TrackEventAccounts adds every non-zero address seen in an event to the
	// tracked accounts.
	TrackEventAccounts bool
	Logger             log.Logger
}

// Store holds the latest snapshot of a token and fans it out to subscribers.
type Store struct {
	token erc20.Token
	opts  Options
	log   log.Logger

	mu       sync.RWMutex
	snap     Snapshot
	accounts map[common.Address]struct{}
	pairs    map[Pair]struct{}
	subs     map[uuid.UUID]chan Snapshot

	refreshMu sync.Mutex
	kick      chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Store over token. Nothing is read until Start.
func New(token erc20.Token, opts Options) *Store {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPoll
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	s := &Store{
		token:    token,
		opts:     opts,
		log:      opts.Logger,
		accounts: make(map[common.Address]struct{}),
		pairs:    make(map[Pair]struct{}),
		subs:     make(map[uuid.UUID]chan Snapshot),
		kick:     make(chan struct{}, 1),
	}
	for _, a := range opts.Accounts {
		s.accounts[a] = struct{}{}
	}
	for _, p := range opts.Allowances {
		s.pairs[p] = struct{}{}
	}
	return s
}

// Start performs the initial load and begins refreshing in the background.
// A failed initial load is recorded in the snapshot and returned; the store
// keeps running and retries on the next tick or event.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	var (
		events <-chan erc20.Event
		unsub  func()
	)
	if w, ok := s.token.(erc20.Watcher); ok {
		ch := make(chan erc20.Event, eventBuffer)
		unsub = w.WatchEvents(ch)
		events = ch
	}

	err := s.Refresh(ctx)
	go s.loop(ctx, events, unsub)
	return err
}

// Stop ends background refreshing and closes every subscription.
func (s *Store) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.cancel = nil
	s.mu.Unlock()
}

func (s *Store) loop(ctx context.Context, events <-chan erc20.Event, unsub func()) {
	defer close(s.done)
	if unsub != nil {
		defer unsub()
	}

	var tick <-chan time.Time
	if events == nil {
		t := time.NewTicker(s.opts.PollInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.observe(ev)
			// coalesce bursts into one refresh
			for drained := false; !drained; {
				select {
				case ev := <-events:
					s.observe(ev)
				default:
					drained = true
				}
			}
		case <-tick:
		case <-s.kick:
		}
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("binding refresh failed")
		}
	}
}

func (s *Store) observe(ev erc20.Event) {
	s.log.WithField("event", ev.String()).Debug("token event")
	if !s.opts.TrackEventAccounts {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range []common.Address{ev.From, ev.To} {
		if a != (common.Address{}) {
			s.accounts[a] = struct{}{}
		}
	}
	if ev.Kind == erc20.KindApproval {
		s.pairs[Pair{Owner: ev.From, Spender: ev.To}] = struct{}{}
	}
}

// Track adds accounts to the tracked set and schedules a refresh.
func (s *Store) Track(accounts ...common.Address) {
	s.mu.Lock()
	for _, a := range accounts {
		s.accounts[a] = struct{}{}
	}
	s.mu.Unlock()
	s.schedule()
}

// TrackAllowance adds an owner/spender pair and schedules a refresh.
func (s *Store) TrackAllowance(owner, spender common.Address) {
	s.mu.Lock()
	s.pairs[Pair{Owner: owner, Spender: spender}] = struct{}{}
	s.mu.Unlock()
	s.schedule()
}

func (s *Store) schedule() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Refresh reads the token now and publishes a new snapshot. Metadata is
// read once; supply, balances and allowances on every call.
func (s *Store) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.RLock()
	prev := s.snap
	accounts := make([]common.Address, 0, len(s.accounts))
	for a := range s.accounts {
		accounts = append(accounts, a)
	}
	pairs := make([]Pair, 0, len(s.pairs))
	for p := range s.pairs {
		pairs = append(pairs, p)
	}
	s.mu.RUnlock()

	next, err := s.read(ctx, prev, accounts, pairs)
	if err != nil {
		next = prev
		next.LastError = err.Error()
	}
	next.UpdatedAt = time.Now()

	s.mu.Lock()
	s.snap = next
	s.broadcastLocked(next)
	s.mu.Unlock()
	return err
}

func (s *Store) read(ctx context.Context, prev Snapshot, accounts []common.Address, pairs []Pair) (Snapshot, error) {
	next := Snapshot{
		Initialized: true,
		Name:        prev.Name,
		Symbol:      prev.Symbol,
		Decimals:    prev.Decimals,
		Balances:    make(map[common.Address]*big.Int, len(accounts)),
	}
	if !prev.Initialized {
		md, err := erc20.FetchMetadata(ctx, s.token)
		if err != nil {
			return next, fmt.Errorf("loading metadata: %w", err)
		}
		next.Name, next.Symbol, next.Decimals = md.Name, md.Symbol, md.Decimals
	}

	supply, err := s.token.TotalSupply(ctx)
	if err != nil {
		return next, fmt.Errorf("totalSupply: %w", err)
	}
	next.TotalSupply = supply

	for _, a := range accounts {
		bal, err := s.token.BalanceOf(ctx, a)
		if err != nil {
			return next, fmt.Errorf("balanceOf %s: %w", a.Hex(), err)
		}
		next.Balances[a] = bal
	}

	sort.Slice(pairs, func(i, j int) bool {
		if c := pairs[i].Owner.Cmp(pairs[j].Owner); c != 0 {
			return c < 0
		}
		return pairs[i].Spender.Cmp(pairs[j].Spender) < 0
	})
	for _, p := range pairs {
		amt, err := s.token.Allowance(ctx, p.Owner, p.Spender)
		if err != nil {
			return next, fmt.Errorf("allowance %s/%s: %w", p.Owner.Hex(), p.Spender.Hex(), err)
		}
		next.Allowances = append(next.Allowances, Allowance{Pair: p, Amount: amt})
	}
	return next, nil
}

// Snapshot returns the latest snapshot. Its maps must not be modified.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe registers a subscriber. The channel holds at most one pending
// snapshot; a slow reader sees the latest and misses the ones in between.
// The current snapshot is delivered immediately.
func (s *Store) Subscribe() (uuid.UUID, <-chan Snapshot) {
	id := uuid.New()
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subs[id] = ch
	ch <- s.snap
	s.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Store) broadcastLocked(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// BalanceOf reads a balance straight from the token and starts tracking
// the account.
func (s *Store) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := s.token.BalanceOf(ctx, account)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.accounts[account] = struct{}{}
	s.mu.Unlock()
	return bal, nil
}

// Allowance reads an allowance straight from the token and starts tracking
// the pair.
func (s *Store) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	amt, err := s.token.Allowance(ctx, owner, spender)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pairs[Pair{Owner: owner, Spender: spender}] = struct{}{}
	s.mu.Unlock()
	return amt, nil
}

// Transfer sends a transfer through the token and refreshes once it is
// included.
func (s *Store) Transfer(ctx context.Context, opts *erc20.TxOpts, to common.Address, amount *big.Int) (*erc20.Receipt, error) {
	return s.write(ctx, func() (*erc20.Receipt, error) {
		return s.token.Transfer(ctx, opts, to, amount)
	})
}

// Approve sets an allowance through the token and refreshes.
func (s *Store) Approve(ctx context.Context, opts *erc20.TxOpts, spender common.Address, amount *big.Int) (*erc20.Receipt, error) {
	if opts != nil {
		s.mu.Lock()
		s.pairs[Pair{Owner: opts.From, Spender: spender}] = struct{}{}
		s.mu.Unlock()
	}
	return s.write(ctx, func() (*erc20.Receipt, error) {
		return s.token.Approve(ctx, opts, spender, amount)
	})
}

// TransferFrom spends an allowance through the token and refreshes.
func (s *Store) TransferFrom(ctx context.Context, opts *erc20.TxOpts, from, to common.Address, amount *big.Int) (*erc20.Receipt, error) {
	return s.write(ctx, func() (*erc20.Receipt, error) {
		return s.token.TransferFrom(ctx, opts, from, to, amount)
	})
}

func (s *Store) write(ctx context.Context, send func() (*erc20.Receipt, error)) (*erc20.Receipt, error) {
	s.mu.RLock()
	started := s.cancel != nil
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}
	rcpt, err := send()
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.WithError(err).Warn("refresh after write failed")
	}
	return rcpt, nil
}
