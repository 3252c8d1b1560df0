package flowengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/graph"
	"github.com/sudorandom/flowscope/pkg/layout"
	"github.com/sudorandom/flowscope/pkg/telemetry"
)

const (
	clientBuffer = 16
	writeWait    = 10 * time.Second
	maxMessage   = 64 << 10
)

// RecordSource fetches the records of one time window.
type RecordSource interface {
	FetchRecords(ctx context.Context, kind telemetry.Kind, start, end time.Time) ([]telemetry.Record, []telemetry.Issue, error)
}

// Message is what the hub sends to websocket clients. A "graph" message
// announces a new run with its links; "snapshot" messages carry positions.
// Clients drop messages whose Run is older than the last graph they saw.
type Message struct {
	Type     string           `json:"type"`
	Run      uint64           `json:"run"`
	Links    []graph.Link     `json:"links,omitempty"`
	Snapshot *layout.Snapshot `json:"snapshot,omitempty"`
}

// ClientCommand is sent by websocket clients to drag nodes.
type ClientCommand struct {
	Type string  `json:"type"`
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// LayoutRequest is the body of POST /api/layout.
type LayoutRequest struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Masking  *bool  `json:"masking,omitempty"`
	MaskBits *int   `json:"maskBits,omitempty"`
}

type LayoutResponse struct {
	Run    uint64 `json:"run"`
	Nodes  int    `json:"nodes"`
	Links  int    `json:"links"`
	Issues int    `json:"issues"`
	Reused bool   `json:"reused"`
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub serves layout runs to browsers. Every snapshot of the current run is
// broadcast to all connected websocket clients; slow clients miss frames
// rather than stall the others.
type Hub struct {
	pipeline *Pipeline
	source   RecordSource
	kind     telemetry.Kind
	opts     Options
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	// publishMu orders layout starts against updates of current.
	publishMu sync.Mutex

	mu      sync.Mutex
	clients map[uuid.UUID]*client
	current *Result
	graph   []byte
	latest  []byte
}

func NewHub(p *Pipeline, source RecordSource, kind telemetry.Kind, opts Options, log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		pipeline: p,
		source:   source,
		kind:     kind,
		opts:     opts,
		log:      log,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		clients:  make(map[uuid.UUID]*client),
	}
}

// Router returns the hub's routes:
//
//	GET  /ws           websocket stream of Messages
//	POST /api/layout   fetch a window and start laying it out
//	GET  /healthz      liveness
func (h *Hub) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", h.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/api/layout", h.handleLayout).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	return r
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish builds records, starts their layout and streams it to every client.
// Concurrent publishers are serialized so the hub always follows the run the
// layout engine is actually working on.
func (h *Hub) Publish(ctx context.Context, records []telemetry.Record, opts Options) *Result {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	res := h.pipeline.BuildAndLayout(ctx, records, opts)
	if res.Reused {
		return res
	}
	h.follow(res)
	return res
}

// follow makes res the current run, announces its graph and forwards its
// snapshots. The caller holds publishMu.
func (h *Hub) follow(res *Result) {
	msg, err := json.Marshal(Message{Type: "graph", Run: res.Run.ID, Links: res.Graph.Links})
	if err != nil {
		h.log.Errorf("Error encoding graph for run %d: %v", res.Run.ID, err)
		return
	}
	h.mu.Lock()
	h.current, h.graph, h.latest = res, msg, nil
	h.broadcastLocked(msg)
	h.mu.Unlock()
	go h.forward(res)
}

func (h *Hub) forward(res *Result) {
	for snap := range res.Run.C() {
		msg, err := json.Marshal(Message{Type: "snapshot", Run: snap.Run, Snapshot: &snap})
		if err != nil {
			h.log.Errorf("Error encoding snapshot: %v", err)
			continue
		}
		h.mu.Lock()
		if h.current != res {
			h.mu.Unlock()
			return
		}
		h.latest = msg
		h.broadcastLocked(msg)
		h.mu.Unlock()
	}
}

// broadcastLocked queues msg for every client without blocking. The caller holds mu.
func (h *Hub) broadcastLocked(msg []byte) {
	for _, c := range h.clients {
		select {
		case c.send <- msg:
			continue
		default:
		}
		// Behind: drop the oldest queued frame so the newest one, and a run's
		// terminal snapshot in particular, always gets through.
		h.log.Debugf("Client %s is behind, dropping a frame", c.id)
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c.id] = c
	for _, msg := range [][]byte{h.graph, h.latest} {
		if msg != nil {
			c.send <- msg
		}
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infof("Client %s connected from %s (%d connected)", c.id, r.RemoteAddr, n)

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c.id)
	close(c.send)
	h.mu.Unlock()
	h.log.Infof("Client %s disconnected", c.id)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debugf("Write to client %s failed: %v", c.id, err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(maxMessage)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warnf("Read error from client %s: %v", c.id, err)
			}
			return
		}
		var cmd ClientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.log.Debugf("Ignoring malformed command from client %s: %v", c.id, err)
			continue
		}
		h.apply(cmd)
	}
}

func (h *Hub) apply(cmd ClientCommand) {
	h.mu.Lock()
	res := h.current
	h.mu.Unlock()
	if res == nil {
		return
	}
	switch cmd.Type {
	case "pin":
		if !res.Run.Pin(cmd.ID, cmd.X, cmd.Y) {
			h.reheat(res, cmd)
		}
	case "unpin":
		res.Run.Unpin(cmd.ID)
	}
}

// reheat restarts a settled layout with the dragged node pinned and streams
// the new run like any other.
func (h *Hub) reheat(res *Result, cmd ClientCommand) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	h.mu.Lock()
	current := h.current
	h.mu.Unlock()
	if current != res {
		return
	}
	next := h.pipeline.Reheat(context.Background(), res, map[string]layout.Point{cmd.ID: {X: cmd.X, Y: cmd.Y}})
	if next == nil {
		return
	}
	h.follow(next)
}

func (h *Hub) handleLayout(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}
	start, err := telemetry.ParseTime(req.Start, time.Local)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad start: %v", err), http.StatusBadRequest)
		return
	}
	end, err := telemetry.ParseTime(req.End, time.Local)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad end: %v", err), http.StatusBadRequest)
		return
	}
	if end.Before(start) {
		http.Error(w, "end is before start", http.StatusBadRequest)
		return
	}
	opts := h.opts
	if req.Masking != nil {
		opts.Masking = *req.Masking
	}
	if req.MaskBits != nil {
		opts.MaskBits = *req.MaskBits
	}

	records, _, err := h.source.FetchRecords(r.Context(), h.kind, start, end)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to fetch records: %v", err), http.StatusBadGateway)
		return
	}
	// The run outlives the request.
	res := h.Publish(context.WithoutCancel(r.Context()), records, opts)
	writeJSON(w, LayoutResponse{
		Run:    res.Run.ID,
		Nodes:  len(res.Graph.Nodes),
		Links:  len(res.Graph.Links),
		Issues: len(res.Issues),
		Reused: res.Reused,
	})
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	status := map[string]any{"status": "ok", "clients": len(h.clients)}
	if h.current != nil {
		status["run"] = h.current.Run.ID
	}
	h.mu.Unlock()
	writeJSON(w, status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
