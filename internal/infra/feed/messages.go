package feed

import (
	"market_go/internal/event"
	"market_go/internal/execution"
	"market_go/internal/service"
)

// Client request types.
const (
	TypeSubmit      = "submit"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeBook        = "book"
	TypeSales       = "sales"
)

// Server message types.
const (
	TypeReceipt = "receipt"
	TypeSale    = "sale"
	TypeError   = "error"
	TypeWelcome = "welcome"
)

// Request is a client message.
type Request struct {
	Type        string          `json:"type"`
	RequestID   string          `json:"request_id,omitempty"`
	Instruction *event.Envelope `json:"instruction,omitempty"`
	Market      string          `json:"market,omitempty"`
	Mint        string          `json:"mint,omitempty"`
	Limit       int             `json:"limit,omitempty"`
}

// Message is a server message.
type Message struct {
	Type      string             `json:"type"`
	RequestID string             `json:"request_id,omitempty"`
	Session   string             `json:"session,omitempty"`
	Receipt   *execution.Receipt `json:"receipt,omitempty"`
	Sale      *execution.Sale    `json:"sale,omitempty"`
	Book      *service.Book      `json:"book,omitempty"`
	Sales     []execution.Sale   `json:"sales,omitempty"`
	Error     string             `json:"error,omitempty"`
}
