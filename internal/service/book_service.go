package service

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"market_go/internal/domain"
	"market_go/internal/execution"
	"market_go/internal/ledger"

	"github.com/gagliardetto/solana-go"
)

// DefaultTapeSize is how many recent sales the book keeps.
const DefaultTapeSize = 256

// Update is one sequenced outcome fed into the read model.
type Update struct {
	Receipt execution.Receipt
	Changes *ledger.ChangeSet
}

// Book is the open interest on one mint.
type Book struct {
	Mint     solana.PublicKey        `json:"mint"`
	Bids     []domain.BuyTradeState  `json:"bids"`
	Listings []domain.SellTradeState `json:"listings"`
	LastSale *execution.Sale         `json:"last_sale,omitempty"`
}

// BookService keeps open listings, bids and the recent-sales tape. It is
// fed by the sequencer and read by the gateway.
type BookService struct {
	mu       sync.RWMutex
	bids     map[solana.PublicKey]domain.BuyTradeState
	asks     map[solana.PublicKey]domain.SellTradeState
	tape     []execution.Sale // newest last
	tapeSize int
	lastSeq  uint64
	updates  chan Update
}

// NewBookService creates an empty read model keeping tapeSize sales.
func NewBookService(tapeSize int) *BookService {
	if tapeSize <= 0 {
		tapeSize = DefaultTapeSize
	}
	return &BookService{
		bids:     make(map[solana.PublicKey]domain.BuyTradeState),
		asks:     make(map[solana.PublicKey]domain.SellTradeState),
		tapeSize: tapeSize,
		updates:  make(chan Update, 1000), // 버스트 대응을 위한 충분한 버퍼
	}
}

// Seed loads the open trade states of a restored state.
func (s *BookService) Seed(accounts []domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.put(a)
	}
}

// UpdateChan returns the channel for incoming updates.
func (s *BookService) UpdateChan() chan<- Update {
	return s.updates
}

// Enqueue queues u for the processor. It gives up and returns false once
// ctx is done, so a stopped processor cannot stall the caller.
func (s *BookService) Enqueue(ctx context.Context, u Update) bool {
	select {
	case s.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

// StartProcessor starts a background goroutine that applies queued updates.
func (s *BookService) StartProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-s.updates:
				s.Apply(u)
			}
		}
	}()
}

// Apply folds one outcome into the read model. Rejected instructions only
// advance the sequence watermark.
func (s *BookService) Apply(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Receipt.Seq > s.lastSeq {
		s.lastSeq = u.Receipt.Seq
	}
	if u.Changes != nil {
		for _, a := range u.Changes.Accounts {
			s.put(a)
		}
		for _, k := range u.Changes.Deleted {
			delete(s.bids, k)
			delete(s.asks, k)
		}
	}
	if sale := u.Receipt.Sale; sale != nil {
		s.tape = append(s.tape, *sale)
		if over := len(s.tape) - s.tapeSize; over > 0 {
			s.tape = append(s.tape[:0], s.tape[over:]...)
		}
	}
}

// put must be called with lock held.
func (s *BookService) put(a domain.Account) {
	switch v := a.(type) {
	case *domain.BuyTradeState:
		s.bids[v.Address] = *v
	case *domain.SellTradeState:
		s.asks[v.Address] = *v
	}
}

// LastSeq returns the newest sequence number seen.
func (s *BookService) LastSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}

// GetBook returns the open bids (best first) and listings (cheapest first,
// wildcards last) on mint within market.
func (s *BookService) GetBook(market, mint solana.PublicKey) Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := Book{Mint: mint, Bids: []domain.BuyTradeState{}, Listings: []domain.SellTradeState{}}
	for _, bid := range s.bids {
		if bid.Market.Equals(market) && bid.Mint.Equals(mint) {
			b.Bids = append(b.Bids, bid)
		}
	}
	for _, ask := range s.asks {
		if ask.Market.Equals(market) && ask.Mint.Equals(mint) {
			b.Listings = append(b.Listings, ask)
		}
	}
	sort.Slice(b.Bids, func(i, j int) bool {
		if b.Bids[i].Price != b.Bids[j].Price {
			return b.Bids[i].Price > b.Bids[j].Price
		}
		return bytes.Compare(b.Bids[i].Address[:], b.Bids[j].Address[:]) < 0
	})
	sort.Slice(b.Listings, func(i, j int) bool {
		if b.Listings[i].Price != b.Listings[j].Price {
			return b.Listings[i].Price < b.Listings[j].Price
		}
		return bytes.Compare(b.Listings[i].Address[:], b.Listings[j].Address[:]) < 0
	})
	for i := len(s.tape) - 1; i >= 0; i-- {
		if s.tape[i].Market.Equals(market) && s.tape[i].Mint.Equals(mint) {
			sale := s.tape[i]
			b.LastSale = &sale
			break
		}
	}
	return b
}

// BidsBy returns the open bids placed by buyer, sorted by address.
func (s *BookService) BidsBy(buyer solana.PublicKey) []domain.BuyTradeState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.BuyTradeState, 0)
	for _, bid := range s.bids {
		if bid.Buyer.Equals(buyer) {
			result = append(result, bid)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Address[:], result[j].Address[:]) < 0
	})
	return result
}

// ListingsBy returns the open listings of seller, sorted by address.
func (s *BookService) ListingsBy(seller solana.PublicKey) []domain.SellTradeState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SellTradeState, 0)
	for _, ask := range s.asks {
		if ask.Seller.Equals(seller) {
			result = append(result, ask)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Address[:], result[j].Address[:]) < 0
	})
	return result
}

// RecentSales returns up to limit sales, newest first. limit <= 0 returns all.
func (s *BookService) RecentSales(limit int) []execution.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.tape)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]execution.Sale, 0, n)
	for i := len(s.tape) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.tape[i])
	}
	return result
}
