// Package runctx manages the run context: generating a run identifier,
// creating the run directory, discovering the host's session id once it
// becomes observable, and publishing configuration to child processes
// through the environment.
package runctx

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const placeholderSessionID = "unknown"

// Run is the per-invocation context shared by every component.
type Run struct {
	RunID     string
	SessionID string
	RunDir    string
	StartedAt time.Time
}

// New creates a run rooted at <profileDir>/logs/<runId>. The run id is the
// first 8 hex characters of a fresh UUID, which keeps run directory names
// short; the rest of the UUID is not kept.
func New(profileDir string) (*Run, error) {
	full := uuid.NewString()
	runID := full[:8]
	runDir := filepath.Join(profileDir, "logs", runID)
	if err := os.MkdirAll(filepath.Join(runDir, "raw"), 0o700); err != nil {
		return nil, err
	}
	return &Run{
		RunID:     runID,
		SessionID: placeholderSessionID,
		RunDir:    runDir,
		StartedAt: time.Now(),
	}, nil
}

// PublishEnv returns the environment variables the run context contributes
// to every child process the wrapper forks.
func (r *Run) PublishEnv() map[string]string {
	return map[string]string{
		"RUN_ID":     r.RunID,
		"SESSION_ID": r.SessionID,
		"OUTPUT_DIR": r.RunDir,
	}
}

// TracePath is the canonical JSONL file for this run.
func (r *Run) TracePath() string {
	return filepath.Join(r.RunDir, "trace.otlp.jsonl")
}

// ReportPath is where the materializer writes report.html.
func (r *Run) ReportPath() string {
	return filepath.Join(r.RunDir, "report.html")
}

// sessionIDLine is the minimal shape needed to pull session.id off a
// resourceSpans document without depending on internal/otlp (avoids an
// import cycle with the tracer, which constructs Runs).
type sessionIDLine struct {
	ResourceSpans []struct {
		ScopeSpans []struct {
			Spans []struct {
				Attributes []struct {
					Key   string `json:"key"`
					Value struct {
						StringValue *string `json:"stringValue"`
					} `json:"value"`
				} `json:"attributes"`
			} `json:"spans"`
		} `json:"scopeSpans"`
	} `json:"resourceSpans"`
}

// DiscoverSessionID scans an existing trace.otlp.jsonl (if any) for the
// first span carrying a real session.id attribute. It returns "" if no
// session id has been observed yet.
func DiscoverSessionID(tracePath string) string {
	f, err := os.Open(tracePath)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var doc sessionIDLine
		if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
			continue
		}
		for _, rs := range doc.ResourceSpans {
			for _, ss := range rs.ScopeSpans {
				for _, span := range ss.Spans {
					for _, attr := range span.Attributes {
						if attr.Key == "session.id" && attr.Value.StringValue != nil && *attr.Value.StringValue != "" && *attr.Value.StringValue != placeholderSessionID {
							return *attr.Value.StringValue
						}
					}
				}
			}
		}
	}
	return ""
}
