package ingestor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meetbot/platform/internal/apperr"
	"github.com/meetbot/platform/internal/metrics"
)

const (
	pingPeriod = 20 * time.Second
	pongWait   = 60 * time.Second
	readLimit  = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// errorFrame is the outbound shape on malformed input.
type errorFrame struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// safeConn serializes writes across the reader and writer pumps; gorilla's
// Conn permits only one concurrent writer.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *safeConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *safeConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

// Endpoint serves the duplex transcription-worker connections at
// /stream/segments, grounded on the teacher's upgrade/reader-pump/
// writer-pump/ping-pong websocket skeleton, generalized from a broadcast
// event stream into a read-and-route stream.
type Endpoint struct {
	processor *Processor
	logger    *zap.Logger
}

func NewEndpoint(processor *Processor, logger *zap.Logger) *Endpoint {
	return &Endpoint{processor: processor, logger: logger}
}

func (e *Endpoint) Register(mux *http.ServeMux) {
	mux.HandleFunc("/stream/segments", e.handle)
}

func (e *Endpoint) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connID := uuid.New()
	logger := e.logger.With(zap.String("connection_id", connID.String()))
	logger.Info("transcription worker connected")

	metrics.IngestorConnections.Inc()
	defer metrics.IngestorConnections.Dec()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sc := &safeConn{conn: conn}
	done := make(chan struct{})
	go e.writerPump(sc, done)

	e.readerPump(r.Context(), conn, sc, logger)
	close(done)
	logger.Info("transcription worker disconnected")
}

func (e *Endpoint) readerPump(ctx context.Context, conn *websocket.Conn, sc *safeConn, logger *zap.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return // connection drop is a normal event
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			e.writeError(sc, "malformed json")
			continue
		}

		if perr := e.processor.ProcessFrame(ctx, frame); perr != nil {
			if apperr.KindOf(perr) == apperr.IngestionMalformed {
				e.writeError(sc, perr.Error())
				continue
			}
			logger.Error("segment processing failed", zap.Error(perr))
			e.writeError(sc, "internal error processing segments")
		}
	}
}

func (e *Endpoint) writerPump(sc *safeConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sc.ping(); err != nil {
				return
			}
		}
	}
}

func (e *Endpoint) writeError(sc *safeConn, message string) {
	_ = sc.writeJSON(errorFrame{Status: "error", Message: message})
}
