package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"FundMe/internal/chain"
	"FundMe/internal/ledger"
	"FundMe/internal/model"
	"FundMe/internal/notifier"
	"FundMe/internal/pricefeed"
)

// TxRequest is the payload of every transaction endpoint. Value is in wei;
// ValueETH is an alternative decimal ether amount. Signature is From's
// signature over TxMessage, and Nonce must be From's current nonce.
type TxRequest struct {
	From      string  `json:"from" binding:"required"`
	Value     string  `json:"value"`
	ValueETH  string  `json:"value_eth"`
	GasLimit  uint64  `json:"gas_limit"`
	Nonce     *uint64 `json:"nonce" binding:"required"`
	Signature string  `json:"signature"`
}

type eventResponse struct {
	Kind    string   `json:"kind"`
	Account string   `json:"account"`
	Amount  string   `json:"amount"`
	Funders []string `json:"funders,omitempty"`
}

type receiptResponse struct {
	TxHash  string          `json:"tx_hash"`
	Method  string          `json:"method"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Value   string          `json:"value"`
	GasUsed uint64          `json:"gas_used"`
	Fee     string          `json:"fee"`
	Status  string          `json:"status"`
	Error   string          `json:"error,omitempty"`
	Events  []eventResponse `json:"events"`
}

func newReceiptResponse(r *model.Receipt) receiptResponse {
	out := receiptResponse{
		TxHash:  r.TxHash.Hex(),
		Method:  r.Method,
		From:    r.From.Hex(),
		To:      r.To.Hex(),
		Value:   r.Value.Dec(),
		GasUsed: r.GasUsed,
		Fee:     r.Fee.Dec(),
		Status:  string(r.Status),
		Error:   r.ErrString(),
		Events:  make([]eventResponse, 0, len(r.Events)),
	}
	for _, e := range r.Events {
		ev := eventResponse{Kind: string(e.Kind), Account: e.Account.Hex(), Amount: e.Amount.Dec()}
		for _, f := range e.Funders {
			ev.Funders = append(ev.Funders, f.Hex())
		}
		out.Events = append(out.Events, ev)
	}
	return out
}

func (req *TxRequest) parse() (chain.Tx, error) {
	if !common.IsHexAddress(req.From) {
		return chain.Tx{}, fmt.Errorf("from %q is not an address", req.From)
	}
	tx := chain.Tx{From: common.HexToAddress(req.From), GasLimit: req.GasLimit, Value: new(uint256.Int)}

	switch {
	case req.Value != "" && req.ValueETH != "":
		return chain.Tx{}, fmt.Errorf("set either value or value_eth")
	case req.Value != "":
		v, err := uint256.FromDecimal(req.Value)
		if err != nil {
			return chain.Tx{}, fmt.Errorf("value %q: %w", req.Value, err)
		}
		tx.Value = v
	case req.ValueETH != "":
		eth, err := decimal.NewFromString(req.ValueETH)
		if err != nil {
			return chain.Tx{}, fmt.Errorf("value_eth %q: %w", req.ValueETH, err)
		}
		wei := eth.Shift(pricefeed.Precision)
		if wei.IsNegative() || !wei.Equal(wei.Truncate(0)) {
			return chain.Tx{}, fmt.Errorf("value_eth %q is not a whole number of wei", req.ValueETH)
		}
		v, overflow := uint256.FromBig(wei.BigInt())
		if overflow {
			return chain.Tx{}, fmt.Errorf("value_eth %q overflows", req.ValueETH)
		}
		tx.Value = v
	}
	return tx, nil
}

func (h *Handler) submit(c *gin.Context, method string, fn func(*chain.Call) error) {
	var req TxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tx, err := req.parse()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	tx.To = h.Ledger.Address()
	tx.Method = method
	tx.Nonce = req.Nonce

	signer, err := recoverSender(TxMessage(method, tx.To, tx.Value, req.GasLimit, *req.Nonce), req.Signature)
	if err != nil {
		unauthorized(c, err)
		return
	}
	if signer != tx.From {
		unauthorized(c, fmt.Errorf("%w: signed by %s", ErrUnauthorized, signer.Hex()))
		return
	}

	receipt, err := h.Chain.Submit(c.Request.Context(), tx, fn)
	if err != nil {
		abortWithError(c, err, receipt)
		return
	}
	c.JSON(http.StatusOK, newReceiptResponse(receipt))
}

// Fund contributes the attached value.
func (h *Handler) Fund(c *gin.Context) {
	h.submit(c, ledger.MethodFund, h.Ledger.Fund)
}

// Withdraw sends the balance to the owner.
func (h *Handler) Withdraw(c *gin.Context) {
	h.submit(c, ledger.MethodWithdraw, h.Ledger.Withdraw)
}

// CheaperWithdraw is the gas-optimized withdrawal.
func (h *Handler) CheaperWithdraw(c *gin.Context) {
	h.submit(c, ledger.MethodCheaperWithdraw, h.Ledger.CheaperWithdraw)
}

func (h *Handler) GetOwner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"owner": h.Ledger.Owner().Hex()})
}

func (h *Handler) GetPriceFeed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"price_feed": h.Ledger.PriceFeed().Hex()})
}

// GetPrice reads the feed and converts one unit to USD.
func (h *Handler) GetPrice(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	feed := h.Ledger.Feed()
	price, err := feed.LatestPrice(ctx)
	if err != nil {
		abortWithError(c, err, nil)
		return
	}
	usd, err := pricefeed.ToUSD(chain.Ether(1), price)
	if err != nil {
		abortWithError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feed":         feed.Address().Hex(),
		"description":  feed.Description(),
		"round_id":     price.RoundID.String(),
		"answer":       price.Answer.String(),
		"decimals":     price.Decimals,
		"updated_at":   price.UpdatedAt,
		"usd_per_unit": usd.Dec(),
		"usd":          notifier.ToDecimal(usd).StringFixed(2),
		"minimum_usd":  ledger.MinimumUSD.Dec(),
	})
}

func (h *Handler) GetFunder(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "index must be an integer")
		return
	}
	funder, err := h.Ledger.Funder(index)
	if err != nil {
		abortWithError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "funder": funder.Hex()})
}

func (h *Handler) GetAmountFunded(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "amount": h.Ledger.AddressToAmountFunded(addr).Dec()})
}

func (h *Handler) GetBalance(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	balance := h.Chain.BalanceOf(addr)
	c.JSON(http.StatusOK, gin.H{
		"address":     addr.Hex(),
		"balance":     balance.Dec(),
		"balance_eth": notifier.ToDecimal(balance).String(),
	})
}

type funderResponse struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// GetStatus returns a consistent snapshot of the whole ledger.
func (h *Handler) GetStatus(c *gin.Context) {
	st := h.Ledger.Status()
	funders := make([]funderResponse, 0, len(st.Funders))
	for _, f := range st.Funders {
		funders = append(funders, funderResponse{Address: f.Account.Hex(), Amount: f.Amount.Dec()})
	}
	c.JSON(http.StatusOK, gin.H{
		"contract":     st.Contract.Hex(),
		"owner":        st.Owner.Hex(),
		"price_feed":   st.PriceFeed.Hex(),
		"balance":      st.Balance.Dec(),
		"balance_eth":  notifier.ToDecimal(st.Balance).String(),
		"funder_count": len(funders),
		"funders":      funders,
	})
}

// GetNonce returns the nonce the next signed transaction from address must carry.
func (h *Handler) GetNonce(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "nonce": h.Chain.Nonce(addr)})
}

const maxHistoryLimit = 500

// GetHistory lists recorded transactions, newest first.
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 20
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 || parsed > maxHistoryLimit {
			badRequest(c, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = parsed
	}
	rows, err := h.Recorder.RecentTransactions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

// GetEvents lists recorded ledger events of one account.
func (h *Handler) GetEvents(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	rows, err := h.Recorder.EventsFor(addr.Hex())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows})
}

func addressParam(c *gin.Context) (common.Address, bool) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		badRequest(c, fmt.Sprintf("%q is not an address", raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
