// Package mockclaude provides a scripted httptest.Server speaking the
// Anthropic Messages API wire format, for exercising internal/httpintercept
// and internal/sse without a real provider.
package mockclaude

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// ToolCall scripts one tool_use content block.
type ToolCall struct {
	ID    string
	Name  string
	Input string // raw JSON
}

// Response is one scripted reply: either served whole (Stream=false) or
// chunked as SSE deltas (Stream=true).
type Response struct {
	Model            string
	Text             string
	ToolCalls        []ToolCall
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	Stream           bool
	StatusCode       int
}

// Server serves scripted Messages API responses in call order.
type Server struct {
	httpServer *httptest.Server
	mu         sync.Mutex
	responses  []Response
	callIndex  int
	Requests   []json.RawMessage
}

// New starts a Server with the given scripted responses, served in order.
func New(responses ...Response) *Server {
	s := &Server{responses: responses}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the server's base URL, suitable for AI_BASE_URL.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts down the underlying httptest.Server.
func (s *Server) Close() { s.httpServer.Close() }

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	s.mu.Lock()
	s.Requests = append(s.Requests, json.RawMessage(body))
	idx := s.callIndex
	s.callIndex++
	s.mu.Unlock()

	if idx >= len(s.responses) {
		http.Error(w, "mockclaude: no more scripted responses", http.StatusInternalServerError)
		return
	}
	resp := s.responses[idx]
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}

	if resp.Stream {
		s.writeSSE(w, resp)
		return
	}
	s.writeJSON(w, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, resp Response) {
	type content struct {
		Type  string          `json:"type"`
		Text  string          `json:"text,omitempty"`
		ID    string          `json:"id,omitempty"`
		Name  string          `json:"name,omitempty"`
		Input json.RawMessage `json:"input,omitempty"`
	}
	blocks := []content{}
	if resp.Text != "" {
		blocks = append(blocks, content{Type: "text", Text: resp.Text})
	}
	for _, tc := range resp.ToolCalls {
		blocks = append(blocks, content{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: json.RawMessage(tc.Input)})
	}

	payload := map[string]any{
		"model":   resp.Model,
		"content": blocks,
		"usage": map[string]any{
			"input_tokens":               resp.InputTokens,
			"output_tokens":              resp.OutputTokens,
			"cache_read_input_tokens":    resp.CacheReadTokens,
			"cache_creation_input_tokens": resp.CacheWriteTokens,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSSE chunks resp into the Anthropic event taxonomy: message_start,
// one content_block_start/delta/stop triple per block, message_delta,
// message_stop, matching the shape internal/sse.Collector expects.
func (s *Server) writeSSE(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	send := func(event string, payload any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
		time.Sleep(time.Millisecond)
	}

	send("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"model": resp.Model,
			"usage": map[string]any{"input_tokens": resp.InputTokens},
		},
	})

	index := 0
	if resp.Text != "" {
		send("content_block_start", map[string]any{
			"type": "content_block_start", "index": index,
			"content_block": map[string]any{"type": "text"},
		})
		send("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": index,
			"delta": map[string]any{"type": "text_delta", "text": resp.Text},
		})
		send("content_block_stop", map[string]any{"type": "content_block_stop", "index": index})
		index++
	}
	for _, tc := range resp.ToolCalls {
		send("content_block_start", map[string]any{
			"type": "content_block_start", "index": index,
			"content_block": map[string]any{"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": map[string]any{}},
		})
		send("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": index,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": tc.Input},
		})
		send("content_block_stop", map[string]any{"type": "content_block_stop", "index": index})
		index++
	}

	send("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn"},
		"usage": map[string]any{"output_tokens": resp.OutputTokens},
	})
	send("message_stop", map[string]any{"type": "message_stop"})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
