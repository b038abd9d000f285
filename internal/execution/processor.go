// Package execution applies marketplace instructions to the ledger.
//
// Every instruction runs inside one ledger transaction: supplied addresses
// are verified against their derivations first, then the handler stages
// its writes, and the transaction is committed only if nothing failed.
package execution

import (
	"fmt"
	"time"

	"market_go/internal/domain"
	"market_go/internal/ledger"
	"market_go/internal/pda"
	"market_go/internal/strategy"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Config holds the runtime parameters of the processor.
type Config struct {
	// RentPerByte is charged per stored byte when a trade state is opened.
	RentPerByte uint64
	// TreasuryMinLeftover must remain in a treasury after a withdrawal,
	// in settlement units (converted with the market's decimals).
	TreasuryMinLeftover decimal.Decimal
	// DefaultBidExpiry applies to bids submitted without an expiry. Zero
	// means bids never expire by default.
	DefaultBidExpiry time.Duration
}

// Result is the outcome of a successfully applied instruction.
type Result struct {
	Kind    Kind
	Changes *ledger.ChangeSet
	Sale    *Sale
}

// Sale describes a settled ExecuteSale.
type Sale struct {
	Market         solana.PublicKey `json:"market"`
	Mint           solana.PublicKey `json:"mint"`
	Buyer          solana.PublicKey `json:"buyer"`
	Seller         solana.PublicKey `json:"seller"`
	BuyTradeState  solana.PublicKey `json:"buy_trade_state"`
	SellTradeState solana.PublicKey `json:"sell_trade_state"`
	Destination    solana.PublicKey `json:"destination"`
	Price          uint64           `json:"price"`
	Quantity       uint64           `json:"quantity"`
	Total          uint64           `json:"total"`
	Fee            uint64           `json:"fee"`
	BuyerReferral  uint64           `json:"buyer_referral,omitempty"`
	SellerReferral uint64           `json:"seller_referral,omitempty"`
	SellerProceeds uint64           `json:"seller_proceeds"`
	Royalty        uint64           `json:"royalty"`
	Payouts        []domain.Payout  `json:"payouts,omitempty"`
}

// Processor applies instructions. It holds no account state itself.
type Processor struct {
	cfg       Config
	deriver   *pda.Deriver
	registry  *strategy.Registry
	authority pda.Address
	now       func() time.Time
}

// NewProcessor creates a processor for the deriver's program.
func NewProcessor(d *pda.Deriver, rules *strategy.RuleEngine, cfg Config) (*Processor, error) {
	authority, err := d.ProgramAuthority()
	if err != nil {
		return nil, err
	}
	return &Processor{
		cfg:       cfg,
		deriver:   d,
		registry:  strategy.NewRegistry(authority.Key, rules),
		authority: authority,
		now:       time.Now,
	}, nil
}

// SetClock replaces the time source used for expiry.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// Deriver returns the address deriver.
func (p *Processor) Deriver() *pda.Deriver {
	return p.deriver
}

// Authority returns the program authority address.
func (p *Processor) Authority() solana.PublicKey {
	return p.authority.Key
}

// Execute applies ins to st. On error st is unchanged and the error is an
// *domain.InstructionError naming the failing accounts.
func (p *Processor) Execute(st *ledger.MemState, ins Instruction) (*Result, error) {
	tx := st.Begin()
	res := &Result{Kind: ins.Kind()}

	var err error
	switch in := ins.(type) {
	case *CreateMarket:
		err = p.createMarket(tx, in)
	case *UpdateMarket:
		err = p.updateMarket(tx, in)
	case *WithdrawFromTreasury:
		err = p.withdrawFromTreasury(tx, in)
	case *Deposit:
		err = p.deposit(tx, in)
	case *Withdraw:
		err = p.withdraw(tx, in)
	case *Sell:
		err = p.sell(tx, in)
	case *CancelSell:
		err = p.cancelSell(tx, in)
	case *Buy:
		err = p.buy(tx, in)
	case *CancelBuy:
		err = p.cancelBuy(tx, in)
	case *ExecuteSale:
		res.Sale, err = p.executeSale(tx, in)
	default:
		err = fmt.Errorf("%w: unknown instruction %T", domain.ErrInvalidAccountState, ins)
	}
	if err != nil {
		tx.Rollback()
		return nil, domain.NewInstructionError(string(ins.Kind()), err)
	}

	res.Changes, err = tx.Commit()
	if err != nil {
		return nil, domain.NewInstructionError(string(ins.Kind()), err)
	}
	return res, nil
}

// fail attaches the offending account to err.
func fail(op Kind, err error, accounts ...solana.PublicKey) error {
	return domain.NewInstructionError(string(op), err, accounts...)
}

// verified loads the market at key and checks that key is its derived address.
func (p *Processor) verified(tx *ledger.Tx, op Kind, key solana.PublicKey) (*domain.Market, error) {
	m, err := tx.Market(key)
	if err != nil {
		return nil, fail(op, err, key)
	}
	derived, err := p.deriver.Market(m.Creator)
	if err != nil {
		return nil, fail(op, err, key)
	}
	if err := pda.Verify(pda.RoleMarket, key, derived); err != nil {
		return nil, fail(op, err, key)
	}
	return m, nil
}

// check is one supplied-vs-derived address comparison.
type check struct {
	role     string
	supplied solana.PublicKey
	derive   func() (pda.Address, error)
}

// verifyAll runs every check before the handler mutates anything.
func verifyAll(op Kind, checks ...check) (map[string]pda.Address, error) {
	out := make(map[string]pda.Address, len(checks))
	for _, c := range checks {
		addr, err := c.derive()
		if err != nil {
			return nil, fail(op, err, c.supplied)
		}
		if err := pda.Verify(c.role, c.supplied, addr); err != nil {
			return nil, fail(op, err, c.supplied)
		}
		out[c.role] = addr
	}
	return out, nil
}

func (p *Processor) programAuthority() (pda.Address, error) {
	return p.authority, nil
}

func requireSigner(op Kind, s Signed, k solana.PublicKey) error {
	if !s.signedBy(k) {
		return fail(op, fmt.Errorf("%w: %s must sign", domain.ErrUnauthorized, k), k)
	}
	return nil
}

func requireSignOff(op Kind, s Signed, m *domain.Market) error {
	if m.RequiresSignOff && !s.signedBy(m.Authority) {
		return fail(op, domain.ErrSignOffRequired, m.Authority)
	}
	return nil
}
