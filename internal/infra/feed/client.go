package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"market_go/internal/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	submitTimeout  = 10 * time.Second
)

// Client is one websocket session. send is never closed; the hub closes
// done to end the session.
type Client struct {
	server     *Server
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	stopOnce   sync.Once
	session    uuid.UUID
	subscribed atomic.Bool
}

func newClient(s *Server, conn *websocket.Conn) *Client {
	return &Client{
		server:  s,
		conn:    conn,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
		session: uuid.New(),
	}
}

// stop ends the session. Only the hub calls it.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.server.hub.remove(c)
		c.conn.Close()
		c.server.metrics.DecrementConnections()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("Gateway read error", slog.String("session", c.session.String()), slog.Any("error", err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(Message{Type: TypeError, Error: "malformed request: " + err.Error()})
			continue
		}
		c.handle(req)
	}
}

func (c *Client) handle(req Request) {
	switch req.Type {
	case TypeSubmit:
		c.submit(req)
	case TypeSubscribe:
		c.subscribed.Store(true)
	case TypeUnsubscribe:
		c.subscribed.Store(false)
	case TypeBook:
		c.book(req)
	case TypeSales:
		c.reply(Message{Type: TypeSales, RequestID: req.RequestID, Sales: c.server.book.RecentSales(req.Limit)})
	default:
		c.reply(Message{Type: TypeError, RequestID: req.RequestID, Error: "unknown request type " + req.Type})
	}
}

// submit blocks until the sequencer answers, so one session's instructions
// are applied in the order it sent them.
func (c *Client) submit(req Request) {
	if req.Instruction == nil {
		c.reply(Message{Type: TypeError, RequestID: req.RequestID, Error: "missing instruction"})
		return
	}
	ev, err := event.Decode(req.Instruction)
	if err != nil {
		c.reply(Message{Type: TypeError, RequestID: req.RequestID, Error: err.Error()})
		return
	}
	ins := ev.Instruction
	event.ReleaseInstructionEvent(ev)

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	r, err := c.server.submitter.Submit(ctx, ins)
	if err != nil {
		c.reply(Message{Type: TypeError, RequestID: req.RequestID, Error: err.Error()})
		return
	}
	c.reply(Message{Type: TypeReceipt, RequestID: req.RequestID, Receipt: &r})
}

func (c *Client) book(req Request) {
	market, err := solanaKey(req.Market)
	if err != nil {
		c.reply(Message{Type: TypeError, RequestID: req.RequestID, Error: "market: " + err.Error()})
		return
	}
	mint, err := solanaKey(req.Mint)
	if err != nil {
		c.reply(Message{Type: TypeError, RequestID: req.RequestID, Error: "mint: " + err.Error()})
		return
	}
	b := c.server.book.GetBook(market, mint)
	c.reply(Message{Type: TypeBook, RequestID: req.RequestID, Book: &b})
}

// reply queues msg for this client only.
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal reply", slog.Any("error", err))
		return
	}
	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case c.send <- data:
	case <-c.done:
	case <-timer.C:
		slog.Warn("Gateway reply dropped", slog.String("session", c.session.String()), slog.String("type", msg.Type))
	}
}
