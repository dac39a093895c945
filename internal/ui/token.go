package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/binding"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
)

// LoadingText is shown until the binding layer has loaded the token.
const LoadingText = "Loading ..."

type snapshotMsg binding.Snapshot
type closedMsg struct{}
type spinMsg struct{}

// TokenModel is the live token dashboard. It renders whatever snapshots
// arrive on its channel and has no state of its own beyond the latest one.
type TokenModel struct {
	title    string
	updates  <-chan binding.Snapshot
	labels   map[common.Address]string
	snap     binding.Snapshot
	frame    int
	quitting bool
}

// NewTokenModel renders snapshots from updates under title. labels names
// known accounts (wallet names, accounts[i]).
func NewTokenModel(title string, updates <-chan binding.Snapshot, labels map[common.Address]string) TokenModel {
	return TokenModel{title: title, updates: updates, labels: labels}
}

// NewDashboard wraps m in a bubbletea program.
func NewDashboard(m TokenModel) *tea.Program {
	return tea.NewProgram(m)
}

func (m TokenModel) Init() tea.Cmd {
	return tea.Batch(m.next(), spin())
}

func (m TokenModel) next() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func spin() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg { return spinMsg{} })
}

func (m TokenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case snapshotMsg:
		m.snap = binding.Snapshot(msg)
		return m, m.next()
	case closedMsg:
		m.quitting = true
		return m, tea.Quit
	case spinMsg:
		if m.snap.Initialized {
			return m, nil
		}
		m.frame++
		return m, spin()
	}
	return m, nil
}

// Snapshot returns the snapshot currently displayed.
func (m TokenModel) Snapshot() binding.Snapshot { return m.snap }

func (m TokenModel) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(StyleTitle.Render(m.title) + "\n")

	if !m.snap.Initialized {
		frame := spinnerFrames[m.frame%len(spinnerFrames)]
		sb.WriteString(StyleToken.Render(frame) + " " + Meta(LoadingText) + "\n")
		if m.snap.LastError != "" {
			sb.WriteString(Err(m.snap.LastError) + "\n")
		}
		return sb.String()
	}

	sb.WriteString(TokenMetadata(m.snap) + "\n")
	sb.WriteString(TokenWallet(m.snap, m.labels))
	if m.snap.LastError != "" {
		sb.WriteString(Warn(m.snap.LastError) + "\n")
	}
	sb.WriteString(Meta(fmt.Sprintf("updated %s · q to quit", m.snap.UpdatedAt.Format("15:04:05"))) + "\n")
	return sb.String()
}

// TokenMetadata renders name, symbol, decimals and total supply.
func TokenMetadata(s binding.Snapshot) string {
	if !s.Initialized {
		return Meta(LoadingText)
	}
	return KeyValueBlock("Token", [][2]string{
		{"Name", s.Name},
		{"Symbol", s.Symbol},
		{"Decimals", fmt.Sprint(s.Decimals)},
		{"Total supply", erc20.FormatUnits(s.TotalSupply, s.Decimals) + " " + s.Symbol},
	})
}

// TokenWallet renders the tracked balances and allowances.
func TokenWallet(s binding.Snapshot, labels map[common.Address]string) string {
	if !s.Initialized {
		return Meta(LoadingText)
	}
	name := func(a common.Address) string {
		if l, ok := labels[a]; ok {
			return l
		}
		return TruncateAddr(a.Hex())
	}

	var sb strings.Builder
	bal := NewTable(Column{Title: "Account"}, Column{Title: "Address"}, Column{Title: "Balance (" + s.Symbol + ")", Right: true})
	for _, a := range s.Accounts() {
		bal.AddRow(name(a), a.Hex(), erc20.FormatUnits(s.Balances[a], s.Decimals))
	}
	if len(bal.Rows) == 0 {
		sb.WriteString(Meta("no accounts tracked") + "\n")
	} else {
		sb.WriteString(bal.Render())
	}

	if len(s.Allowances) > 0 {
		sb.WriteString("\n")
		al := NewTable(Column{Title: "Owner"}, Column{Title: "Spender"}, Column{Title: "Allowance", Right: true})
		for _, a := range s.Allowances {
			al.AddRow(name(a.Owner), name(a.Spender), erc20.FormatUnits(a.Amount, s.Decimals))
		}
		sb.WriteString(al.Render())
	}
	return sb.String()
}
