package deploy

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"FundMe/internal/ledger"
	"FundMe/internal/model"
)

// Persister keeps the state file in sync with the ledger.
type Persister struct {
	mu       sync.Mutex
	ledger   *ledger.FundMe
	filePath string
}

// NewPersister restores fm from filePath if the file holds a saved state,
// then writes the current state back.
func NewPersister(filePath string, fm *ledger.FundMe) (*Persister, error) {
	state, err := ledger.LoadState(filePath)
	if err != nil {
		return nil, err
	}
	if !state.Empty() {
		if err := fm.Restore(state); err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{
			"file":    filePath,
			"funders": len(state.Funders),
			"saved":   state.UpdatedAt,
		}).Info("ledger state restored")
	}

	p := &Persister{ledger: fm, filePath: filePath}
	if err := p.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

// OnReceipt is a chain listener saving state after every transaction. Reverted
// transactions still move gas fees.
func (p *Persister) OnReceipt(r *model.Receipt) {
	if err := p.Save(); err != nil {
		log.WithField("tx", r.TxHash.Hex()).Errorf("failed to save ledger state: %v", err)
	}
}

// Save writes the committed state to disk.
func (p *Persister) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ledger.SaveState(p.filePath, p.ledger.Capture())
}
