package recorder

import "FundMe/internal/model"

// NoopRecorder is a no-op implementation used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordReceipt(_ *model.Receipt) error             { return nil }
func (n *NoopRecorder) RecordPriceCheck(_ *model.PriceCheck) error       { return nil }
func (n *NoopRecorder) RecentTransactions(int) ([]TransactionRow, error) { return nil, nil }
func (n *NoopRecorder) EventsFor(string) ([]EventRow, error)             { return nil, nil }
func (n *NoopRecorder) Close() error                                     { return nil }
