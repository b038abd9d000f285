package execution

import (
	"github.com/gagliardetto/solana-go"
)

// Kind names an instruction on the wire and in the instruction log.
type Kind string

const (
	KindCreateMarket         Kind = "create_market"
	KindUpdateMarket         Kind = "update_market"
	KindWithdrawFromTreasury Kind = "withdraw_from_treasury"
	KindDeposit              Kind = "deposit"
	KindWithdraw             Kind = "withdraw"
	KindSell                 Kind = "sell"
	KindCancelSell           Kind = "cancel_sell"
	KindBuy                  Kind = "buy"
	KindCancelBuy            Kind = "cancel_buy"
	KindExecuteSale          Kind = "execute_sale"
)

// Kinds lists every instruction kind.
var Kinds = []Kind{
	KindCreateMarket, KindUpdateMarket, KindWithdrawFromTreasury,
	KindDeposit, KindWithdraw,
	KindSell, KindCancelSell,
	KindBuy, KindCancelBuy,
	KindExecuteSale,
}

// Instruction is a request to change state. Addresses inside an
// instruction are supplied by the caller and verified before use.
type Instruction interface {
	Kind() Kind
	Signers() []solana.PublicKey
}

// Signed carries the identities that signed the instruction. Signature
// verification happens before an instruction reaches the processor.
type Signed struct {
	By []solana.PublicKey `json:"signers"`
}

func (s Signed) Signers() []solana.PublicKey { return s.By }

func (s Signed) signedBy(k solana.PublicKey) bool {
	for _, b := range s.By {
		if b.Equals(k) {
			return true
		}
	}
	return false
}

// New returns an empty instruction of kind k, for decoding.
func New(k Kind) (Instruction, bool) {
	switch k {
	case KindCreateMarket:
		return &CreateMarket{}, true
	case KindUpdateMarket:
		return &UpdateMarket{}, true
	case KindWithdrawFromTreasury:
		return &WithdrawFromTreasury{}, true
	case KindDeposit:
		return &Deposit{}, true
	case KindWithdraw:
		return &Withdraw{}, true
	case KindSell:
		return &Sell{}, true
	case KindCancelSell:
		return &CancelSell{}, true
	case KindBuy:
		return &Buy{}, true
	case KindCancelBuy:
		return &CancelBuy{}, true
	case KindExecuteSale:
		return &ExecuteSale{}, true
	default:
		return nil, false
	}
}

type CreateMarket struct {
	Signed
	Creator               solana.PublicKey `json:"creator"`
	Market                solana.PublicKey `json:"market"`
	Treasury              solana.PublicKey `json:"treasury"`
	Authority             solana.PublicKey `json:"authority"`
	SettlementMint        solana.PublicKey `json:"settlement_mint"`
	SettlementDecimals    int32            `json:"settlement_decimals"`
	WithdrawalDestination solana.PublicKey `json:"withdrawal_destination"`
	FeeBps                uint16           `json:"fee_bps"`
	BuyerReferralBps      uint16           `json:"buyer_referral_bps"`
	SellerReferralBps     uint16           `json:"seller_referral_bps"`
	RequiresSignOff       bool             `json:"requires_sign_off"`
}

type UpdateMarket struct {
	Signed
	Market                solana.PublicKey  `json:"market"`
	FeeBps                *uint16           `json:"fee_bps,omitempty"`
	BuyerReferralBps      *uint16           `json:"buyer_referral_bps,omitempty"`
	SellerReferralBps     *uint16           `json:"seller_referral_bps,omitempty"`
	RequiresSignOff       *bool             `json:"requires_sign_off,omitempty"`
	NewAuthority          *solana.PublicKey `json:"new_authority,omitempty"`
	WithdrawalDestination *solana.PublicKey `json:"withdrawal_destination,omitempty"`
}

// WithdrawFromTreasury sweeps fees to the market's withdrawal destination.
// Anyone may submit it.
type WithdrawFromTreasury struct {
	Signed
	Market   solana.PublicKey `json:"market"`
	Treasury solana.PublicKey `json:"treasury"`
	Amount   uint64           `json:"amount"`
}

type Deposit struct {
	Signed
	Market solana.PublicKey `json:"market"`
	Buyer  solana.PublicKey `json:"buyer"`
	Escrow solana.PublicKey `json:"escrow"`
	Amount uint64           `json:"amount"`
}

type Withdraw struct {
	Signed
	Market solana.PublicKey `json:"market"`
	Buyer  solana.PublicKey `json:"buyer"`
	Escrow solana.PublicKey `json:"escrow"`
	Amount uint64           `json:"amount"`
}

// Sell lists Quantity units held in TokenAccount. Price may be
// domain.WildcardPrice. Expiry is unix seconds, 0 for none.
type Sell struct {
	Signed
	Market           solana.PublicKey `json:"market"`
	Seller           solana.PublicKey `json:"seller"`
	TokenAccount     solana.PublicKey `json:"token_account"`
	Mint             solana.PublicKey `json:"mint"`
	SellTradeState   solana.PublicKey `json:"sell_trade_state"`
	ProgramAuthority solana.PublicKey `json:"program_authority"`
	Price            uint64           `json:"price"`
	Quantity         uint64           `json:"quantity"`
	Expiry           int64            `json:"expiry"`
	Referral         solana.PublicKey `json:"referral"`
}

type CancelSell struct {
	Signed
	Market           solana.PublicKey `json:"market"`
	Seller           solana.PublicKey `json:"seller"`
	TokenAccount     solana.PublicKey `json:"token_account"`
	Mint             solana.PublicKey `json:"mint"`
	SellTradeState   solana.PublicKey `json:"sell_trade_state"`
	ProgramAuthority solana.PublicKey `json:"program_authority"`
}

// Buy opens a bid. Expiry 0 selects the configured default.
type Buy struct {
	Signed
	Market            solana.PublicKey `json:"market"`
	Buyer             solana.PublicKey `json:"buyer"`
	Mint              solana.PublicKey `json:"mint"`
	Escrow            solana.PublicKey `json:"escrow"`
	BuyTradeState     solana.PublicKey `json:"buy_trade_state"`
	Price             uint64           `json:"price"`
	Quantity          uint64           `json:"quantity"`
	CreatorRoyaltyBps uint16           `json:"creator_royalty_bps"`
	Expiry            int64            `json:"expiry"`
	Referral          solana.PublicKey `json:"referral"`
	// TopUp deposits any escrow shortfall from the buyer's wallet first.
	TopUp bool `json:"top_up,omitempty"`
}

type CancelBuy struct {
	Signed
	Market        solana.PublicKey `json:"market"`
	Buyer         solana.PublicKey `json:"buyer"`
	Mint          solana.PublicKey `json:"mint"`
	BuyTradeState solana.PublicKey `json:"buy_trade_state"`
	Price         uint64           `json:"price"`
	Quantity      uint64           `json:"quantity"`
}

// ExecuteSale settles one bid against one listing. Price and Quantity are
// the bid's terms.
type ExecuteSale struct {
	Signed
	Market           solana.PublicKey `json:"market"`
	Buyer            solana.PublicKey `json:"buyer"`
	Seller           solana.PublicKey `json:"seller"`
	Mint             solana.PublicKey `json:"mint"`
	TokenAccount     solana.PublicKey `json:"token_account"`
	Escrow           solana.PublicKey `json:"escrow"`
	Treasury         solana.PublicKey `json:"treasury"`
	BuyTradeState    solana.PublicKey `json:"buy_trade_state"`
	SellTradeState   solana.PublicKey `json:"sell_trade_state"`
	ProgramAuthority solana.PublicKey `json:"program_authority"`
	Price            uint64           `json:"price"`
	Quantity         uint64           `json:"quantity"`
}

func (*CreateMarket) Kind() Kind         { return KindCreateMarket }
func (*UpdateMarket) Kind() Kind         { return KindUpdateMarket }
func (*WithdrawFromTreasury) Kind() Kind { return KindWithdrawFromTreasury }
func (*Deposit) Kind() Kind              { return KindDeposit }
func (*Withdraw) Kind() Kind             { return KindWithdraw }
func (*Sell) Kind() Kind                 { return KindSell }
func (*CancelSell) Kind() Kind           { return KindCancelSell }
func (*Buy) Kind() Kind                  { return KindBuy }
func (*CancelBuy) Kind() Kind            { return KindCancelBuy }
func (*ExecuteSale) Kind() Kind          { return KindExecuteSale }
