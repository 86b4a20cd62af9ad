// Package httpintercept is a loopback HTTP reverse proxy standing in for
// the interception an external, unmodified host binary cannot have
// monkey-patched into it. The wrapper starts this server before forking
// the host CLI and publishes its address as the provider base URL
// override, so the host's own HTTP client routes through it unmodified.
package httpintercept

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ccprofile/internal/correlator"
	"ccprofile/internal/otlp"
	"ccprofile/internal/pricing"
	"ccprofile/internal/sse"
	"ccprofile/internal/tracer"
)

const (
	maxAttrChars       = 10000
	truncationMarker   = "...[truncated]"
	charsPerTokenEst   = 3.7
	minTokensPerWord   = 0.75
)

// Server is the loopback reverse proxy fronting the real AI-provider host.
type Server struct {
	upstream    *url.URL
	tracer      *tracer.Tracer
	correlator  *correlator.Correlator
	log         *slog.Logger
	listener    net.Listener
	httpServer  *http.Server
}

// New builds a proxy targeting upstreamBaseURL (e.g. https://api.anthropic.com).
func New(upstreamBaseURL string, tr *tracer.Tracer, corr *correlator.Correlator, log *slog.Logger) (*Server, error) {
	u, err := url.Parse(upstreamBaseURL)
	if err != nil {
		return nil, fmt.Errorf("httpintercept: invalid upstream base url: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{upstream: u, tracer: tr, correlator: corr, log: log}, nil
}

// Start binds 127.0.0.1:0 (OS-assigned port) and begins serving. Addr()
// returns the chosen address once Start has returned successfully.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("httpintercept: listen: %w", err)
	}
	s.listener = ln
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.httpServer = &http.Server{Handler: mux}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Warn("httpintercept: server exited", "error", err)
		}
	}()
	return nil
}

// Addr is the loopback address the host CLI should be pointed at.
func (s *Server) Addr() string {
	return "http://" + s.listener.Addr().String()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reqBody, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadGateway)
		return
	}
	r.Body.Close()

	span := s.tracer.StartAPISpan(r.Method, r.URL.Path)
	var requestedModel string
	if len(reqBody) > 0 {
		var head struct {
			Model string `json:"model"`
		}
		if json.Unmarshal(reqBody, &head) == nil {
			requestedModel = head.Model
		}
	}
	span.SetAttribute("ai.model", requestedModel)
	span.SetAttribute("ai.prompt", truncate(string(reqBody)))

	proxyReq := s.buildUpstreamRequest(r, reqBody)
	resp, err := http.DefaultClient.Do(proxyReq)
	if err != nil {
		span.RecordException(err)
		span.SetStatus(otlp.StatusError, err.Error())
		span.End()
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordException(err)
	}

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)

	s.observe(span, requestedModel, resp, reqBody, respBody, started)
}

func (s *Server) buildUpstreamRequest(r *http.Request, body []byte) *http.Request {
	u := *s.upstream
	u.Path = r.URL.Path
	u.RawQuery = r.URL.RawQuery
	req, _ := http.NewRequestWithContext(r.Context(), r.Method, u.String(), bytes.NewReader(body))
	req.Header = r.Header.Clone()
	req.Host = u.Host
	return req
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// observe parses the cloned response (JSON or SSE), extracts usage/cost/
// text, hands tool_use intentions to the correlator, and ends the span
// with the appropriate status.
func (s *Server) observe(span *tracer.Span, requestedModel string, resp *http.Response, reqBody, body []byte, started time.Time) {
	contentType := resp.Header.Get("Content-Type")
	model := requestedModel
	var text string
	var usage sse.Usage
	var toolUses []sse.ToolUse

	if strings.Contains(contentType, "text/event-stream") {
		collector := sse.NewCollector()
		_ = sse.ParseStream(bytes.NewReader(body), func(ev sse.RawEvent) error {
			collector.Observe(ev)
			return nil
		})
		text = collector.OutputText()
		usage = collector.Usage()
		toolUses = collector.ToolUses()
		if m := collector.Model(); m != "" {
			model = m
		}
	} else {
		var payload struct {
			Model   string `json:"model"`
			Usage   sse.Usage `json:"usage"`
			Content []struct {
				Type  string          `json:"type"`
				Text  string          `json:"text"`
				ID    string          `json:"id"`
				Name  string          `json:"name"`
				Input json.RawMessage `json:"input"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			span.RecordException(fmt.Errorf("decode json response: %w", err))
		} else {
			if payload.Model != "" {
				model = payload.Model
			}
			usage = payload.Usage
			var sb strings.Builder
			for _, block := range payload.Content {
				switch block.Type {
				case "text":
					sb.WriteString(block.Text)
				case "tool_use":
					toolUses = append(toolUses, sse.ToolUse{ID: block.ID, Name: block.Name, Input: block.Input})
				}
			}
			text = sb.String()
		}
	}

	inputTokens := usage.InputTokens
	source := "api"
	var estimatedInput int64
	if inputTokens == nil {
		estimatedInput = estimateTokens(string(reqBody))
		source = "estimated"
	}

	u := pricing.Usage{
		InputTokens:      valueOr(inputTokens, estimatedInput),
		OutputTokens:     valueOr(usage.OutputTokens, 0),
		CacheReadTokens:  valueOr(usage.CacheReadInputTokens, 0),
		CacheWriteTokens: valueOr(usage.CacheCreationInputTokens, 0),
	}
	cost := pricing.Compute(model, u)

	span.SetAttribute("ai.model", model)
	span.SetIntAttribute("ai.tokens.input", u.InputTokens)
	span.SetIntAttribute("ai.tokens.output", u.OutputTokens)
	span.SetIntAttribute("ai.cache.read", u.CacheReadTokens)
	span.SetIntAttribute("ai.cache.write", u.CacheWriteTokens)
	span.SetFloatAttribute("ai.cost.usd", cost.USD)
	span.SetBoolAttribute("ai.cost.known", cost.Known)
	span.SetAttribute("inputTokenSource", source)
	span.SetIntAttribute("http.status_code", int64(resp.StatusCode))
	span.SetAttribute("ai.response", truncate(text))

	for _, tu := range toolUses {
		s.correlator.RecordIntention(tu.ID, tu.Name, tu.Input)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		span.SetStatus(otlp.StatusOK, "")
	} else {
		span.SetStatus(otlp.StatusError, fmt.Sprintf("http status %d", resp.StatusCode))
	}
	span.End()
	_ = started
}

func truncate(s string) string {
	if len(s) <= maxAttrChars {
		return s
	}
	return s[:maxAttrChars] + truncationMarker
}

// estimateTokens is the fallback used when the provider response carries
// no usage block: ≈3.7 chars/token, lower-bounded by words × 0.75.
func estimateTokens(body string) int64 {
	if len(body) == 0 {
		return 0
	}
	byChars := float64(len(body)) / charsPerTokenEst
	words := float64(len(strings.Fields(body)))
	byWords := words * minTokensPerWord
	if byChars < byWords {
		return int64(byWords)
	}
	return int64(byChars)
}

func valueOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}
