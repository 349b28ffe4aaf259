package recorder

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"

	"FundMe/internal/chain"
	"FundMe/internal/model"
)

// TransactionRow is one recorded transaction.
type TransactionRow struct {
	ID        string    `json:"id"`
	TxHash    string    `json:"tx_hash"`
	Method    string    `json:"method"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Value     string    `json:"value"`
	GasUsed   uint64    `json:"gas_used"`
	Fee       string    `json:"fee"`
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// EventRow is one ledger event of a committed transaction.
type EventRow struct {
	ID        string    `json:"id"`
	TxHash    string    `json:"tx_hash"`
	Kind      string    `json:"kind"`
	Account   string    `json:"account"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceCheckRow is one scheduled feed query.
type PriceCheckRow struct {
	ID         string    `json:"id"`
	Feed       string    `json:"feed"`
	Answer     string    `json:"answer"`
	Decimals   uint8     `json:"decimals"`
	USDPerUnit string    `json:"usd_per_unit"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

// Recorder persists ledger history for analysis.
type Recorder interface {
	RecordReceipt(r *model.Receipt) error
	RecordPriceCheck(pc *model.PriceCheck) error
	RecentTransactions(limit int) ([]TransactionRow, error)
	EventsFor(account string) ([]EventRow, error)
	Close() error
}

// Listener returns a chain listener that records every receipt. Recording
// failures are logged and never affect the transaction.
func Listener(rec Recorder) chain.Listener {
	return func(r *model.Receipt) {
		if err := rec.RecordReceipt(r); err != nil {
			log.WithField("tx", r.TxHash.Hex()).Errorf("record receipt: %v", err)
		}
	}
}

func transactionRow(r *model.Receipt) TransactionRow {
	return TransactionRow{
		ID:        uuid.NewString(),
		TxHash:    r.TxHash.Hex(),
		Method:    r.Method,
		From:      r.From.Hex(),
		To:        r.To.Hex(),
		Value:     decString(r.Value),
		GasUsed:   r.GasUsed,
		Fee:       decString(r.Fee),
		Status:    string(r.Status),
		Error:     r.ErrString(),
		Timestamp: r.Timestamp,
	}
}

func eventRows(r *model.Receipt) []EventRow {
	rows := make([]EventRow, 0, len(r.Events))
	for _, e := range r.Events {
		rows = append(rows, EventRow{
			ID:        uuid.NewString(),
			TxHash:    r.TxHash.Hex(),
			Kind:      string(e.Kind),
			Account:   e.Account.Hex(),
			Amount:    decString(e.Amount),
			Timestamp: r.Timestamp,
		})
	}
	return rows
}

func priceCheckRow(pc *model.PriceCheck) PriceCheckRow {
	return PriceCheckRow{
		ID:         uuid.NewString(),
		Feed:       pc.Feed,
		Answer:     pc.Answer,
		Decimals:   pc.Decimals,
		USDPerUnit: decString(pc.USDPerUnit),
		OK:         pc.OK,
		Error:      pc.Error,
		Timestamp:  pc.CheckedAt,
	}
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
