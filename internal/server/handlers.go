package server

import (
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/binding"
	"github.com/Mohsinsiddi/tkn/internal/contract"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type balanceView struct {
	Address   string `json:"address"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
}

type allowanceView struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Amount    string `json:"amount"`
	Formatted string `json:"formatted"`
}

// tokenView is a Snapshot with amounts as decimal strings, which JavaScript
// numbers cannot hold.
type tokenView struct {
	Network     string          `json:"network,omitempty"`
	Initialized bool            `json:"initialized"`
	Name        string          `json:"name,omitempty"`
	Symbol      string          `json:"symbol,omitempty"`
	Decimals    uint8           `json:"decimals"`
	TotalSupply string          `json:"totalSupply,omitempty"`
	Balances    []balanceView   `json:"balances"`
	Allowances  []allowanceView `json:"allowances"`
	LastError   string          `json:"lastError,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type eventView struct {
	Event       erc20.EventKind `json:"event"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Tokens      string          `json:"tokens"`
	BlockNumber uint64          `json:"blockNumber"`
	TxHash      string          `json:"transactionHash"`
}

type receiptView struct {
	TxHash      string      `json:"transactionHash"`
	BlockNumber uint64      `json:"blockNumber"`
	Events      []eventView `json:"events"`
}

func amount(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func (s *Server) view(snap binding.Snapshot) tokenView {
	v := tokenView{
		Network:     s.cfg.Network,
		Initialized: snap.Initialized,
		Name:        snap.Name,
		Symbol:      snap.Symbol,
		Decimals:    snap.Decimals,
		LastError:   snap.LastError,
		UpdatedAt:   snap.UpdatedAt,
		Balances:    []balanceView{},
		Allowances:  []allowanceView{},
	}
	if !snap.Initialized {
		return v
	}
	v.TotalSupply = amount(snap.TotalSupply)
	for _, a := range snap.Accounts() {
		b := snap.Balances[a]
		v.Balances = append(v.Balances, balanceView{
			Address:   a.Hex(),
			Balance:   amount(b),
			Formatted: erc20.FormatUnits(b, snap.Decimals),
		})
	}
	for _, a := range snap.Allowances {
		v.Allowances = append(v.Allowances, allowanceView{
			Owner:     a.Owner.Hex(),
			Spender:   a.Spender.Hex(),
			Amount:    amount(a.Amount),
			Formatted: erc20.FormatUnits(a.Amount, snap.Decimals),
		})
	}
	return v
}

func eventViews(evs []erc20.Event) []eventView {
	out := make([]eventView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventView{
			Event:       ev.Kind,
			From:        ev.From.Hex(),
			To:          ev.To.Hex(),
			Tokens:      amount(ev.Tokens),
			BlockNumber: ev.BlockNumber,
			TxHash:      ev.TxHash.Hex(),
		})
	}
	return out
}

func apiError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// statusFor maps token errors onto HTTP statuses: reverts are 422, missing
// signers 403, a store that is not running 503, anything else 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, erc20.ErrInsufficientBalance),
		errors.Is(err, erc20.ErrInsufficientAllowance),
		errors.Is(err, erc20.ErrAmountOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, contract.ErrNoSigner):
		return http.StatusForbidden
	case errors.Is(err, binding.ErrNotStarted):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func parseAddress(c *gin.Context, field, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		apiError(c, http.StatusBadRequest, errors.New("invalid "+field+" address"))
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func (s *Server) handleToken(c *gin.Context) {
	c.JSON(http.StatusOK, s.view(s.store.Snapshot()))
}

func (s *Server) handleBalance(c *gin.Context) {
	addr, ok := parseAddress(c, "account", c.Param("address"))
	if !ok {
		return
	}
	bal, err := s.store.BalanceOf(c.Request.Context(), addr)
	if err != nil {
		_ = c.Error(err)
		apiError(c, statusFor(err), err)
		return
	}
	snap := s.store.Snapshot()
	c.JSON(http.StatusOK, balanceView{Address: addr.Hex(), Balance: amount(bal), Formatted: erc20.FormatUnits(bal, snap.Decimals)})
}

func (s *Server) handleAllowance(c *gin.Context) {
	owner, ok := parseAddress(c, "owner", c.Param("owner"))
	if !ok {
		return
	}
	spender, ok := parseAddress(c, "spender", c.Param("spender"))
	if !ok {
		return
	}
	amt, err := s.store.Allowance(c.Request.Context(), owner, spender)
	if err != nil {
		_ = c.Error(err)
		apiError(c, statusFor(err), err)
		return
	}
	snap := s.store.Snapshot()
	c.JSON(http.StatusOK, allowanceView{Owner: owner.Hex(), Spender: spender.Hex(), Amount: amount(amt), Formatted: erc20.FormatUnits(amt, snap.Decimals)})
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.cfg.Events == nil {
		c.JSON(http.StatusOK, []eventView{})
		return
	}
	kind := erc20.EventKind(c.Query("kind"))
	if kind != "" && kind != erc20.KindTransfer && kind != erc20.KindApproval {
		apiError(c, http.StatusBadRequest, errors.New("kind must be Transfer or Approval"))
		return
	}
	evs, err := s.cfg.Events.Events(c.Request.Context(), kind)
	if err != nil {
		_ = c.Error(err)
		apiError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, eventViews(evs))
}

type transferRequest struct {
	From   string `json:"from" binding:"required"`
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type approveRequest struct {
	Owner   string `json:"owner" binding:"required"`
	Spender string `json:"spender" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

type transferFromRequest struct {
	Spender string `json:"spender" binding:"required"` // the caller
	From    string `json:"from" binding:"required"`
	To      string `json:"to" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

func parseAmount(c *gin.Context, s string) (*big.Int, bool) {
	n, err := erc20.ParseAmount(s)
	if err != nil {
		apiError(c, http.StatusBadRequest, err)
		return nil, false
	}
	return n, true
}

func (s *Server) handleTransfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, err)
		return
	}
	from, ok := parseAddress(c, "from", req.From)
	if !ok {
		return
	}
	to, ok := parseAddress(c, "to", req.To)
	if !ok {
		return
	}
	amt, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	s.reply(c, func() (*erc20.Receipt, error) {
		return s.store.Transfer(c.Request.Context(), &erc20.TxOpts{From: from}, to, amt)
	})
}

func (s *Server) handleApprove(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, err)
		return
	}
	owner, ok := parseAddress(c, "owner", req.Owner)
	if !ok {
		return
	}
	spender, ok := parseAddress(c, "spender", req.Spender)
	if !ok {
		return
	}
	amt, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	s.reply(c, func() (*erc20.Receipt, error) {
		return s.store.Approve(c.Request.Context(), &erc20.TxOpts{From: owner}, spender, amt)
	})
}

func (s *Server) handleTransferFrom(c *gin.Context) {
	var req transferFromRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, err)
		return
	}
	spender, ok := parseAddress(c, "spender", req.Spender)
	if !ok {
		return
	}
	from, ok := parseAddress(c, "from", req.From)
	if !ok {
		return
	}
	to, ok := parseAddress(c, "to", req.To)
	if !ok {
		return
	}
	amt, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	s.reply(c, func() (*erc20.Receipt, error) {
		return s.store.TransferFrom(c.Request.Context(), &erc20.TxOpts{From: spender}, from, to, amt)
	})
}

func (s *Server) reply(c *gin.Context, send func() (*erc20.Receipt, error)) {
	rcpt, err := send()
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		apiError(c, status, err)
		return
	}
	c.JSON(http.StatusOK, receiptView{
		TxHash:      rcpt.TxHash.Hex(),
		BlockNumber: rcpt.BlockNumber,
		Events:      eventViews(rcpt.Events),
	})
}
