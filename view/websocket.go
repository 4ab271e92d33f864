package view

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendQueueSize = 64
)

// frame is an encoded state event and the time its snapshot was taken
type frame struct {
	data    []byte
	takenAt time.Time
}

type wsConnection struct {
	id        uuid.UUID
	conn      *websocket.Conn
	send      chan frame
	done      chan struct{}
	server    *Server
	closeOnce sync.Once
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	wsConn := &wsConnection{
		id:     uuid.New(),
		conn:   conn,
		send:   make(chan frame, sendQueueSize),
		done:   make(chan struct{}),
		server: s,
	}

	// register before taking the first snapshot so no publish is missed;
	// the write pump drops whichever of the two frames is older
	s.registerSubscriber(wsConn)

	if f, err := encodeFrame(s.controller.Snapshot()); err == nil {
		wsConn.enqueue(f)
	} else {
		slog.Error("Failed to encode view state", "error", err)
	}

	go wsConn.writePump()
	go wsConn.readPump()
}

func (s *Server) registerSubscriber(c *wsConnection) {
	count := s.subscribers.Add(c)
	if s.config.Metrics != nil {
		s.config.Metrics.ViewSubscribers.Set(float64(count))
	}
	slog.Debug("View subscriber connected", "subscriberID", c.id, "subscribers", count)
}

func (s *Server) unregisterSubscriber(c *wsConnection) {
	count := s.subscribers.Remove(c.id)
	if s.config.Metrics != nil {
		s.config.Metrics.ViewSubscribers.Set(float64(count))
	}
	slog.Debug("View subscriber disconnected", "subscriberID", c.id, "subscribers", count)
}

func (c *wsConnection) enqueue(f frame) {
	select {
	case c.send <- f:
	default:
		slog.Warn("Failed to send to subscriber - channel full", "subscriberID", c.id)
	}
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	var lastSent time.Time
	for {
		select {
		case f := <-c.send:
			if f.takenAt.Before(lastSent) {
				continue
			}
			lastSent = f.takenAt

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(f.data)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.server.unregisterSubscriber(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
