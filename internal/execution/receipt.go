package execution

import (
	"errors"

	"market_go/internal/domain"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// Receipt statuses.
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
)

// Receipt reports the outcome of one sequenced instruction.
type Receipt struct {
	ID       uuid.UUID          `json:"id"`
	Seq      uint64             `json:"seq"`
	Kind     Kind               `json:"kind"`
	Status   string             `json:"status"`
	Error    string             `json:"error,omitempty"`
	Category string             `json:"category,omitempty"`
	Accounts []solana.PublicKey `json:"accounts,omitempty"`
	Sale     *Sale              `json:"sale,omitempty"`
}

// NewReceipt builds the receipt for an Execute outcome.
func NewReceipt(id uuid.UUID, seq uint64, kind Kind, res *Result, err error) Receipt {
	r := Receipt{ID: id, Seq: seq, Kind: kind, Status: StatusApplied}
	if err != nil {
		r.Status = StatusRejected
		r.Error = err.Error()
		r.Category = domain.Classify(err).String()
		var ie *domain.InstructionError
		if errors.As(err, &ie) {
			r.Accounts = ie.Accounts
		}
		return r
	}
	if res != nil {
		r.Sale = res.Sale
	}
	return r
}

// Applied reports whether the instruction changed state.
func (r Receipt) Applied() bool {
	return r.Status == StatusApplied
}
