// Package feed is the websocket gateway: clients submit instructions,
// receive receipts, query the book and stream executed sales.
package feed

import (
	"context"
	"log/slog"
	"net/http"

	"market_go/internal/execution"
	"market_go/internal/infra"
	"market_go/internal/service"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
)

// Submitter sequences an instruction and returns its receipt.
type Submitter interface {
	Submit(ctx context.Context, ins execution.Instruction) (execution.Receipt, error)
}

// BookReader is the read model the gateway queries.
type BookReader interface {
	GetBook(market, mint solana.PublicKey) service.Book
	RecentSales(limit int) []execution.Sale
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Server upgrades HTTP requests to gateway sessions.
type Server struct {
	hub       *Hub
	submitter Submitter
	book      BookReader
	metrics   *infra.Metrics
}

// NewServer creates a gateway. metrics may be nil.
func NewServer(sub Submitter, book BookReader, metrics *infra.Metrics) *Server {
	return &Server{
		hub:       NewHub(),
		submitter: sub,
		book:      book,
		metrics:   metrics,
	}
}

// Hub returns the client hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run runs the hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// Handler serves the gateway at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	return mux
}

// ServeWS upgrades one connection and starts its pumps.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Gateway upgrade failed", slog.Any("error", err))
		return
	}
	c := newClient(s, conn)
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	s.metrics.IncrementConnections()

	go c.writePump()
	c.reply(Message{Type: TypeWelcome, Session: c.session.String()})
	go c.readPump()
}

// Publish broadcasts the sale of an applied receipt.
func (s *Server) Publish(r execution.Receipt) {
	if r.Applied() && r.Sale != nil {
		s.hub.PublishSale(r.Sale)
	}
}

func solanaKey(s string) (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(s)
}
