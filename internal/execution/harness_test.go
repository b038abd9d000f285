package execution

import (
	"time"

	"market_go/internal/domain"
	"market_go/internal/ledger"
	"market_go/internal/pda"
	"market_go/internal/strategy"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// tester is satisfied by both *testing.T and *rapid.T.
type tester interface {
	Helper()
	Fatalf(format string, args ...any)
}

type harness struct {
	t         tester
	p         *Processor
	st        *ledger.MemState
	d         *pda.Deriver
	rules     *strategy.RuleEngine
	creator   solana.PublicKey
	authority solana.PublicKey
	market    solana.PublicKey
	treasury  solana.PublicKey
	mint      solana.PublicKey
	now       time.Time
}

type marketOption func(*CreateMarket)

func withSignOff(c *CreateMarket) { c.RequiresSignOff = true }

func newHarness(t tester, feeBps uint16, opts ...marketOption) *harness {
	return newHarnessWithConfig(t, Config{TreasuryMinLeftover: decimal.Zero}, feeBps, opts...)
}

func newHarnessWithConfig(t tester, cfg Config, feeBps uint16, opts ...marketOption) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		st:        ledger.NewMemState(),
		d:         pda.NewDeriver(solana.NewWallet().PublicKey(), ""),
		rules:     strategy.NewRuleEngine(),
		creator:   solana.NewWallet().PublicKey(),
		authority: solana.NewWallet().PublicKey(),
		mint:      solana.NewWallet().PublicKey(),
		now:       time.Unix(1_700_000_000, 0),
	}
	p, err := NewProcessor(h.d, h.rules, cfg)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	p.SetClock(func() time.Time { return h.now })
	h.p = p

	m, _ := h.d.Market(h.creator)
	tr, _ := h.d.Treasury(m.Key)
	h.market, h.treasury = m.Key, tr.Key

	ins := &CreateMarket{
		Signed:         Signed{By: []solana.PublicKey{h.creator}},
		Creator:        h.creator,
		Market:         h.market,
		Treasury:       h.treasury,
		Authority:      h.authority,
		SettlementMint: h.mint,
		FeeBps:         feeBps,
	}
	for _, o := range opts {
		o(ins)
	}
	h.must(ins)
	return h
}

// otherMarket creates a second market on the same settlement mint and
// returns its address.
func (h *harness) otherMarket() solana.PublicKey {
	h.t.Helper()
	creator := solana.NewWallet().PublicKey()
	m, _ := h.d.Market(creator)
	tr, _ := h.d.Treasury(m.Key)
	h.must(&CreateMarket{
		Signed:         Signed{By: []solana.PublicKey{creator}},
		Creator:        creator,
		Market:         m.Key,
		Treasury:       tr.Key,
		SettlementMint: h.mint,
	})
	return m.Key
}

func withReferrals(buyerBps, sellerBps uint16) marketOption {
	return func(c *CreateMarket) {
		c.BuyerReferralBps = buyerBps
		c.SellerReferralBps = sellerBps
	}
}

func (h *harness) exec(ins Instruction) (*Result, error) {
	return h.p.Execute(h.st, ins)
}

func (h *harness) must(ins Instruction) *Result {
	h.t.Helper()
	res, err := h.exec(ins)
	if err != nil {
		h.t.Fatalf("%s failed: %v", ins.Kind(), err)
	}
	return res
}

func (h *harness) fund(owner solana.PublicKey, amount uint64) {
	h.st.SetBalance(owner, h.mint, h.st.Balance(owner, h.mint)+amount)
}

func (h *harness) wallet(owner solana.PublicKey) uint64 {
	return h.st.Balance(owner, h.mint)
}

// asset registers a token of class with supply units held by owner and
// returns its mint and the owner's token account.
func (h *harness) asset(owner solana.PublicKey, class domain.AssetClass, supply uint64, mutate ...func(*domain.Asset)) (solana.PublicKey, solana.PublicKey) {
	h.t.Helper()
	mint := solana.NewWallet().PublicKey()
	a := &domain.Asset{Mint: mint, Class: class, Supply: supply}
	for _, m := range mutate {
		m(a)
	}
	locked := false
	if class == domain.ClassGuarded {
		a.GuardProgram = solana.NewWallet().PublicKey()
		g, err := pda.Guard(a.GuardProgram, mint)
		if err != nil {
			h.t.Fatalf("guard: %v", err)
		}
		h.st.Put(&domain.Guard{Address: g.Key, Mint: mint, Frozen: true})
		locked = true
	}
	ta, err := pda.TokenAccount(owner, mint)
	if err != nil {
		h.t.Fatalf("token account: %v", err)
	}
	h.st.Put(a)
	h.st.Put(&domain.TokenAccount{Address: ta, Mint: mint, Owner: owner, Amount: supply, Locked: locked})
	return mint, ta
}

func (h *harness) tokenAccount(key solana.PublicKey) *domain.TokenAccount {
	a, ok := h.st.Account(key)
	if !ok {
		return nil
	}
	return a.(*domain.TokenAccount)
}

func (h *harness) holder(owner, mint solana.PublicKey) uint64 {
	key, _ := pda.TokenAccount(owner, mint)
	if ta := h.tokenAccount(key); ta != nil {
		return ta.Amount
	}
	return 0
}

func (h *harness) escrowKey(buyer solana.PublicKey) solana.PublicKey {
	e, _ := h.d.Escrow(h.market, buyer)
	return e.Key
}

func (h *harness) escrow(buyer solana.PublicKey) uint64 {
	a, ok := h.st.Account(h.escrowKey(buyer))
	if !ok {
		return 0
	}
	return a.(*domain.Escrow).Amount
}

func (h *harness) depositIns(buyer solana.PublicKey, amount uint64) *Deposit {
	return &Deposit{
		Signed: Signed{By: []solana.PublicKey{buyer}},
		Market: h.market,
		Buyer:  buyer,
		Escrow: h.escrowKey(buyer),
		Amount: amount,
	}
}

func (h *harness) withdrawIns(buyer solana.PublicKey, amount uint64) *Withdraw {
	return &Withdraw{
		Signed: Signed{By: []solana.PublicKey{buyer}},
		Market: h.market,
		Buyer:  buyer,
		Escrow: h.escrowKey(buyer),
		Amount: amount,
	}
}

func (h *harness) bidKey(buyer, mint solana.PublicKey, price, qty uint64) solana.PublicKey {
	b, _ := h.d.BuyTradeState(buyer, h.market, mint, price, qty)
	return b.Key
}

func (h *harness) askKey(seller, ta, mint solana.PublicKey) solana.PublicKey {
	s, _ := h.d.SellTradeState(seller, h.market, ta, mint)
	return s.Key
}

func (h *harness) buyIns(buyer, mint solana.PublicKey, price, qty uint64) *Buy {
	return &Buy{
		Signed:        Signed{By: []solana.PublicKey{buyer}},
		Market:        h.market,
		Buyer:         buyer,
		Mint:          mint,
		Escrow:        h.escrowKey(buyer),
		BuyTradeState: h.bidKey(buyer, mint, price, qty),
		Price:         price,
		Quantity:      qty,
	}
}

func (h *harness) cancelBuyIns(buyer, mint solana.PublicKey, price, qty uint64) *CancelBuy {
	return &CancelBuy{
		Signed:        Signed{By: []solana.PublicKey{buyer}},
		Market:        h.market,
		Buyer:         buyer,
		Mint:          mint,
		BuyTradeState: h.bidKey(buyer, mint, price, qty),
		Price:         price,
		Quantity:      qty,
	}
}

func (h *harness) sellIns(seller, ta, mint solana.PublicKey, price, qty uint64) *Sell {
	return &Sell{
		Signed:           Signed{By: []solana.PublicKey{seller}},
		Market:           h.market,
		Seller:           seller,
		TokenAccount:     ta,
		Mint:             mint,
		SellTradeState:   h.askKey(seller, ta, mint),
		ProgramAuthority: h.p.Authority(),
		Price:            price,
		Quantity:         qty,
	}
}

func (h *harness) cancelSellIns(signer, seller, ta, mint solana.PublicKey) *CancelSell {
	return &CancelSell{
		Signed:           Signed{By: []solana.PublicKey{signer}},
		Market:           h.market,
		Seller:           seller,
		TokenAccount:     ta,
		Mint:             mint,
		SellTradeState:   h.askKey(seller, ta, mint),
		ProgramAuthority: h.p.Authority(),
	}
}

func (h *harness) executeIns(signer, buyer, seller, ta, mint solana.PublicKey, price, qty uint64) *ExecuteSale {
	return &ExecuteSale{
		Signed:           Signed{By: []solana.PublicKey{signer}},
		Market:           h.market,
		Buyer:            buyer,
		Seller:           seller,
		Mint:             mint,
		TokenAccount:     ta,
		Escrow:           h.escrowKey(buyer),
		Treasury:         h.treasury,
		BuyTradeState:    h.bidKey(buyer, mint, price, qty),
		SellTradeState:   h.askKey(seller, ta, mint),
		ProgramAuthority: h.p.Authority(),
		Price:            price,
		Quantity:         qty,
	}
}

func (h *harness) exists(key solana.PublicKey) bool {
	_, ok := h.st.Account(key)
	return ok
}

// snapshot captures every account and balance for before/after comparison.
type snapshot struct {
	accounts []domain.Account
	balances map[ledger.BalanceKey]uint64
}

func (h *harness) snapshot() snapshot {
	accs := h.st.Accounts()
	out := make([]domain.Account, len(accs))
	for i, a := range accs {
		out[i] = a.Clone()
	}
	return snapshot{accounts: out, balances: h.st.Balances()}
}
