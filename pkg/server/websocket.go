package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gcode-toolpath/pkg/errors"
)

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type jsonRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

const (
	rpcParseError     = -32700
	rpcMethodNotFound = -32601
	rpcServerError    = -32000
	rpcNotFound       = -32004
)

const (
	maxMessageSize = 4 << 20
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// errMethodNotFound is returned by dispatchMethod for unknown methods.
type errMethodNotFound string

func (e errMethodNotFound) Error() string {
	return fmt.Sprintf("method not found: %s", string(e))
}

// dispatchMethod routes a method call to the appropriate handler.
func (s *Server) dispatchMethod(method string, params map[string]any) (any, error) {
	s.metrics.RecordRequest(method)
	switch method {
	case "job.create":
		return s.methodJobCreate(params)
	case "job.feed":
		return s.methodJobFeed(params)
	case "job.finish":
		return s.methodJobFinish(params)
	case "job.summary":
		id, err := stringParam(params, "id")
		if err != nil {
			return nil, err
		}
		return s.methodJobSummary(id)
	case "job.layers":
		id, err := stringParam(params, "id")
		if err != nil {
			return nil, err
		}
		return s.methodJobLayers(id)
	case "job.delete":
		id, err := stringParam(params, "id")
		if err != nil {
			return nil, err
		}
		if err := s.deleteJob(id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil
	default:
		return nil, errMethodNotFound(method)
	}
}

func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name].(string)
	if !ok {
		return "", errors.RequestError(fmt.Sprintf("missing '%s' parameter", name))
	}
	return v, nil
}

func (s *Server) methodJobCreate(params map[string]any) (any, error) {
	e := s.createJob()
	if text, ok := params["text"].(string); ok && text != "" {
		e.mu.Lock()
		err := e.feed(text)
		info := e.info()
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
		s.broadcastJob(info)
	}
	return map[string]any{"id": e.id}, nil
}

func (s *Server) methodJobFeed(params map[string]any) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}
	text, err := stringParam(params, "text")
	if err != nil {
		return nil, err
	}
	e, err := s.jobs.get(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	err = e.feed(text)
	info := e.info()
	pending := e.stream.Pending()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.broadcastJob(info)
	return map[string]any{"summary": info.Summary, "pending": pending}, nil
}

func (s *Server) methodJobFinish(params map[string]any) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}
	e, err := s.jobs.get(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	err = e.finish()
	info := e.info()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.broadcastJob(info)
	return info, nil
}

// broadcastJob sends notify_job_updated to every connected client.
func (s *Server) broadcastJob(info JobInfo) {
	msg := jsonRPCNotification{
		JSONRPC: "2.0",
		Method:  "notify_job_updated",
		Params:  []any{info},
	}
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	for _, client := range s.wsClients {
		client.Send(msg)
	}
}

// rpcError converts a method error into a JSON-RPC error object.
func rpcError(err error) *jsonRPCError {
	if _, ok := err.(errMethodNotFound); ok {
		return &jsonRPCError{Code: rpcMethodNotFound, Message: err.Error()}
	}
	code := rpcServerError
	if errors.Is(err, errors.ErrServerNotFound) {
		code = rpcNotFound
	}
	return &jsonRPCError{Code: code, Message: err.Error(), Data: errorCode(err)}
}

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

// newWSClient creates a new WebSocket client.
func (s *Server) newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:     atomic.AddInt64(&s.nextWSID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

// Send queues a message for the client, dropping it if the queue is full.
func (c *WSClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.WithField("client", c.id).Warn("dropping message, send queue full")
	}
}

// Close closes the client connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return // Already closed
	default:
		close(c.done)
	}
	c.conn.Close()
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.WithError(err).Warn("websocket read")
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump sends messages to the WebSocket connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.WithError(err).Warn("websocket write")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Send(jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: rpcParseError, Message: "Parse error"},
		})
		return
	}

	result, err := c.server.dispatchMethod(req.Method, req.Params)
	if err != nil {
		c.Send(jsonRPCResponse{JSONRPC: "2.0", Error: rpcError(err), ID: req.ID})
		return
	}
	c.Send(jsonRPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID})
}

// handleWebSocket handles WebSocket upgrade and connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade")
		return
	}

	client := s.newWSClient(conn)
	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	s.logger.WithField("client", client.id).Debug("websocket connected")

	go client.writePump()
	client.readPump() // Blocks until connection closes
}

// removeClient forgets a disconnected client.
func (s *Server) removeClient(client *WSClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()
	s.logger.WithField("client", client.id).Debug("websocket disconnected")
}
