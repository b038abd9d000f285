package domain

import (
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	// MaxPrice bounds any price in settlement base units.
	MaxPrice uint64 = 8_000_000 * 1_000_000_000

	// WildcardPrice on a listing accepts whatever price the matched bid carries.
	WildcardPrice uint64 = math.MaxUint64

	// BuyTradeStateSize and SellTradeStateSize are the stored record sizes
	// used for rent.
	BuyTradeStateSize  = 320
	SellTradeStateSize = 193
)

// BuyTradeState is a standing bid. Its existence at the derived address is
// the order; Committed is the escrow amount reserved for it.
type BuyTradeState struct {
	Address           solana.PublicKey `json:"address"`
	Market            solana.PublicKey `json:"market"`
	Buyer             solana.PublicKey `json:"buyer"`
	Mint              solana.PublicKey `json:"mint"`
	Escrow            solana.PublicKey `json:"escrow"`
	Price             uint64           `json:"price"`
	Quantity          uint64           `json:"quantity"`
	CreatorRoyaltyBps uint16           `json:"creator_royalty_bps"`
	Referral          solana.PublicKey `json:"referral"`
	Committed         uint64           `json:"committed"`
	Expiry            int64            `json:"expiry"`
	Payer             solana.PublicKey `json:"payer"`
	Rent              uint64           `json:"rent"`
	Bump              uint8            `json:"bump"`
}

func (b *BuyTradeState) Kind() Kind            { return KindBuyTradeState }
func (b *BuyTradeState) Key() solana.PublicKey { return b.Address }
func (b *BuyTradeState) Clone() Account        { c := *b; return &c }

// SellTradeState is a standing listing. Price may be WildcardPrice.
type SellTradeState struct {
	Address      solana.PublicKey `json:"address"`
	Market       solana.PublicKey `json:"market"`
	Seller       solana.PublicKey `json:"seller"`
	TokenAccount solana.PublicKey `json:"token_account"`
	Mint         solana.PublicKey `json:"mint"`
	Price        uint64           `json:"price"`
	Quantity     uint64           `json:"quantity"`
	Expiry       int64            `json:"expiry"`
	Referral     solana.PublicKey `json:"referral"`
	Payer        solana.PublicKey `json:"payer"`
	Rent         uint64           `json:"rent"`
	Bump         uint8            `json:"bump"`
}

func (s *SellTradeState) Kind() Kind            { return KindSellTradeState }
func (s *SellTradeState) Key() solana.PublicKey { return s.Address }
func (s *SellTradeState) Clone() Account        { c := *s; return &c }

// IsWildcard reports whether the listing accepts any bid price.
func (s *SellTradeState) IsWildcard() bool {
	return s.Price == WildcardPrice
}

// Accepts reports whether a bid at price clears this listing.
func (s *SellTradeState) Accepts(price uint64) bool {
	return s.IsWildcard() || price >= s.Price
}

// ValidatePrice checks 0 < price <= MaxPrice. allowWildcard admits the
// listing sentinel.
func ValidatePrice(price uint64, allowWildcard bool) error {
	if allowWildcard && price == WildcardPrice {
		return nil
	}
	if price == 0 || price > MaxPrice {
		return ErrInvalidPrice
	}
	return nil
}

// Expired reports whether expiry (unix seconds, 0 = never) has passed at now.
func Expired(expiry int64, now time.Time) bool {
	return expiry > 0 && now.Unix() > expiry
}
