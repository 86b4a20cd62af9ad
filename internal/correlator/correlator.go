// Package correlator records tool_use intentions observed from API
// responses and matches them against later PostToolUse events, via an
// in-memory ring plus a sidecar file for cross-process recovery.
package correlator

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tidwall/pretty"
)

const (
	ringSize        = 256
	matchLookback   = 50
)

// Intention is one tool_use block observed from an API response, awaiting
// a matching PostToolUse hook event.
type Intention struct {
	ToolUseID  string          `json:"tool_use_id"`
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Correlator holds the in-process pending-intention ring plus an optional
// sidecar file for cross-process crash recovery.
type Correlator struct {
	mu         sync.Mutex
	intentions []Intention
	sidecar    string
	log        *slog.Logger
}

// New creates a correlator. sidecarPath, when non-empty, is appended to on
// every RecordIntention and replayed by LoadSidecar.
func New(sidecarPath string, log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	return &Correlator{sidecar: sidecarPath, log: log}
}

// RecordIntention stores a newly observed tool_use block, evicting the
// oldest entry once the ring exceeds its bound.
func (c *Correlator) RecordIntention(toolUseID, toolName string, input json.RawMessage) {
	intent := Intention{
		ToolUseID:  toolUseID,
		ToolName:   toolName,
		ToolInput:  canonicalize(input),
		ObservedAt: time.Now(),
	}

	c.mu.Lock()
	c.intentions = append(c.intentions, intent)
	if len(c.intentions) > ringSize {
		c.intentions = c.intentions[len(c.intentions)-ringSize:]
	}
	c.mu.Unlock()

	c.appendSidecar(intent)
}

// Match does a most-recent-first scan of the last matchLookback
// intentions; the first (tool_name, canonical tool_input) match wins.
// Returns "" if nothing matches.
func (c *Correlator) Match(toolName string, input json.RawMessage) string {
	canon := canonicalize(input)

	c.mu.Lock()
	defer c.mu.Unlock()

	start := 0
	if len(c.intentions) > matchLookback {
		start = len(c.intentions) - matchLookback
	}
	for i := len(c.intentions) - 1; i >= start; i-- {
		cand := c.intentions[i]
		if cand.ToolName == toolName && string(cand.ToolInput) == string(canon) {
			return cand.ToolUseID
		}
	}
	return ""
}

// canonicalize produces a stable comparison key: sorted object keys, no
// insignificant whitespace, via an unmarshal/remarshal round-trip followed
// by tidwall/pretty.Ugly to strip whitespace from any residual formatting.
func canonicalize(input json.RawMessage) json.RawMessage {
	if len(input) == 0 {
		return json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return pretty.Ugly(input)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return pretty.Ugly(input)
	}
	return pretty.Ugly(out)
}

func (c *Correlator) appendSidecar(intent Intention) {
	if c.sidecar == "" {
		return
	}
	f, err := os.OpenFile(c.sidecar, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		c.log.Warn("correlator: sidecar unwritable", "error", err)
		return
	}
	defer f.Close()
	_ = json.NewEncoder(f).Encode(intent)
}

// LoadSidecar replays a sidecar file into the in-memory ring, allowing a
// crash-restarted hook process within the same run to recover pending
// intentions. Not required for correctness of the primary in-process
// match path.
func (c *Correlator) LoadSidecar() error {
	if c.sidecar == "" {
		return nil
	}
	f, err := os.Open(c.sidecar)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var loaded []Intention
	for scanner.Scan() {
		var intent Intention
		if err := json.Unmarshal(scanner.Bytes(), &intent); err != nil {
			continue
		}
		loaded = append(loaded, intent)
	}

	c.mu.Lock()
	if len(loaded) > ringSize {
		loaded = loaded[len(loaded)-ringSize:]
	}
	c.intentions = loaded
	c.mu.Unlock()
	return scanner.Err()
}
