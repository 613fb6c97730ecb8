package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/teemow/ads-mcp/internal/instrumentation"
)

const (
	// ProtocolVersion is the MCP protocol revision answered by the POST /sse handshake.
	ProtocolVersion = "2024-11-05"

	// maxHandshakeBody bounds how much of a POST /sse body is read.
	maxHandshakeBody = 1 << 20

	messagesPath = "/messages/"
)

// corsHeaders are sent on every POST and OPTIONS /sse response.
var corsHeaders = [][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Headers", "Content-Type, mcp-session-id, mcp-protocol-version"},
	{"Access-Control-Allow-Methods", "GET, POST, OPTIONS"},
	{"Access-Control-Expose-Headers", "mcp-session-id"},
	{"Access-Control-Max-Age", "86400"},
}

// ServerInfo names the server in the initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type listChanged struct {
	ListChanged bool `json:"listChanged"`
}

type resourcesCapability struct {
	Subscribe   bool `json:"subscribe"`
	ListChanged bool `json:"listChanged"`
}

type capabilities struct {
	Experimental map[string]any      `json:"experimental"`
	Prompts      listChanged         `json:"prompts"`
	Resources    resourcesCapability `json:"resources"`
	Tools        listChanged         `json:"tools"`
}

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

type initializeResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  initializeResult `json:"result"`
}

// handshakeRequest is the part of a JSON-RPC request the shim looks at.
type handshakeRequest struct {
	Method string
	ID     json.RawMessage
}

// SSECompat answers POST and OPTIONS on /sse for clients that open an MCP
// session with a POST instead of a GET.
type SSECompat struct {
	info    ServerInfo
	metrics *instrumentation.Metrics
	newID   func() string
}

// NewSSECompat returns the /sse POST and OPTIONS handlers. metrics may be nil.
func NewSSECompat(info ServerInfo, metrics *instrumentation.Metrics) *SSECompat {
	return &SSECompat{
		info:    info,
		metrics: metrics,
		newID:   newSessionID,
	}
}

// newSessionID returns a random UUID as 32 lowercase hex characters.
func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func setCORSHeaders(w http.ResponseWriter) {
	for _, h := range corsHeaders {
		w.Header().Set(h[0], h[1])
	}
}

// ServeOptions answers the CORS preflight.
func (s *SSECompat) ServeOptions(w http.ResponseWriter, _ *http.Request) {
	setCORSHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// ServePost writes a single SSE event. An initialize request gets the
// initialize result inline; anything else gets the endpoint event for the
// message channel.
func (s *SSECompat) ServePost(w http.ResponseWriter, r *http.Request) {
	req := parseHandshake(r.Body)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	setCORSHeaders(w)
	w.WriteHeader(http.StatusOK)

	if req.Method == "initialize" {
		s.record(r, instrumentation.HandshakeInitialize)
		_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", s.initializePayload(req.ID))
	} else {
		s.record(r, instrumentation.HandshakeEndpoint)
		_, _ = fmt.Fprintf(w, "event: endpoint\ndata: %s?session_id=%s\n\n", messagesPath, s.newID())
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *SSECompat) record(r *http.Request, variant string) {
	if s.metrics != nil {
		s.metrics.RecordSSEHandshake(r.Context(), variant)
	}
}

// parseHandshake never fails: unreadable bodies, malformed JSON and
// non-object payloads all yield an empty request. Keys match exactly, so
// "Method" or "METHOD" is not a method.
func parseHandshake(body io.Reader) handshakeRequest {
	var req handshakeRequest
	if body == nil {
		return req
	}
	data, err := io.ReadAll(io.LimitReader(body, maxHandshakeBody))
	if err != nil {
		return req
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return req
	}
	if raw, ok := fields["method"]; ok {
		// A non-string method stays empty.
		_ = json.Unmarshal(raw, &req.Method)
	}
	req.ID = fields["id"]
	return req
}

func (s *SSECompat) initializePayload(id json.RawMessage) []byte {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	resp := initializeResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: capabilities{
				Experimental: map[string]any{},
				Prompts:      listChanged{ListChanged: true},
				Resources:    resourcesCapability{Subscribe: false, ListChanged: true},
				Tools:        listChanged{ListChanged: true},
			},
			ServerInfo: s.info,
		},
	}
	out, _ := json.Marshal(resp)
	return out
}
