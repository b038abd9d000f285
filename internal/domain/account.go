package domain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Kind identifies the concrete type stored at an address.
type Kind uint8

const (
	KindMarket Kind = iota + 1
	KindEscrow
	KindBuyTradeState
	KindSellTradeState
	KindAsset
	KindTokenAccount
	KindGuard
)

func (k Kind) String() string {
	switch k {
	case KindMarket:
		return "market"
	case KindEscrow:
		return "escrow"
	case KindBuyTradeState:
		return "buy_trade_state"
	case KindSellTradeState:
		return "sell_trade_state"
	case KindAsset:
		return "asset"
	case KindTokenAccount:
		return "token_account"
	case KindGuard:
		return "guard"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Account is a record stored at a single address.
// Clone must return a deep copy so staged writes never alias committed state.
type Account interface {
	Kind() Kind
	Key() solana.PublicKey
	Clone() Account
}

// NewAccount returns an empty account of the given kind, for decoding.
func NewAccount(k Kind) (Account, error) {
	switch k {
	case KindMarket:
		return &Market{}, nil
	case KindEscrow:
		return &Escrow{}, nil
	case KindBuyTradeState:
		return &BuyTradeState{}, nil
	case KindSellTradeState:
		return &SellTradeState{}, nil
	case KindAsset:
		return &Asset{}, nil
	case KindTokenAccount:
		return &TokenAccount{}, nil
	case KindGuard:
		return &Guard{}, nil
	default:
		return nil, fmt.Errorf("unknown account kind %d", uint8(k))
	}
}
