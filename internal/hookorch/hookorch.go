// Package hookorch registers under a reserved hook name on the host CLI,
// receives every host hook event on stdin, discovers user-configured hook
// commands from the host's settings files, re-executes them serially
// under instrumentation, and merges their responses by a first-wins
// policy.
package hookorch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"ccprofile/internal/correlator"
	"ccprofile/internal/otlp"
	"ccprofile/internal/procintercept"
	"ccprofile/internal/tracer"
)

// Event is the JSON object the host writes to the orchestrator's stdin.
type Event struct {
	SessionID     string          `json:"session_id"`
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	ToolResponse  string          `json:"tool_response"`
	CWD           string          `json:"cwd"`
	Raw           json.RawMessage `json:"-"`
}

// HookCommand is one discovered entry from a settings file.
type HookCommand struct {
	Command string
	Matcher string
	Source  string
}

// Orchestrator runs the hook event lifecycle: annotate, discover, execute,
// merge, respond.
type Orchestrator struct {
	Tracer       *tracer.Tracer
	Correlator   *correlator.Correlator
	OrchestratorPath string
	Settings     []string // user-global, project, project-local, in precedence order
	Log          *slog.Logger
}

// Run executes the hook event lifecycle against the one event in eventJSON
// and writes the composite response to w. It returns the exit code the
// hook subcommand should use.
func (o *Orchestrator) Run(ctx context.Context, eventJSON []byte, w *bytes.Buffer) int {
	if o.Log == nil {
		o.Log = slog.Default()
	}
	if os.Getenv("RUN_ID") == "" {
		fmt.Fprintln(os.Stderr, "ccprofile hook: RUN_ID not set in environment")
		return 1
	}

	var ev Event
	if err := json.Unmarshal(eventJSON, &ev); err != nil {
		fmt.Fprintln(os.Stderr, "ccprofile hook: malformed event JSON:", err)
		return 1
	}
	ev.Raw = eventJSON

	started := time.Now()
	eventSpan := o.Tracer.StartHookEventSpan(ev.HookEventName, ev.ToolName)
	eventSpan.SetAttribute("session.id", ev.SessionID)
	eventSpan.SetAttribute("hook.event", ev.HookEventName)

	var toolSpan *tracer.Span
	if ev.HookEventName == "PostToolUse" {
		useID := o.annotateToolUse(eventSpan, ev)
		toolSpan = o.startToolExecutionSpan(eventSpan, ev, useID)
	}

	commands := o.discoverCommands(ev)
	response, status, exitCode := o.executeCommands(ctx, eventSpan, commands, eventJSON)

	duration := time.Since(started)
	eventSpan.SetIntAttribute("hook.duration.ms", duration.Milliseconds())
	eventSpan.SetIntAttribute("hook.exit_code", exitCode)
	eventSpan.SetStatus(status, "")
	eventSpan.End()

	if toolSpan != nil {
		toolSpan.SetIntAttribute("tool.duration.ms", duration.Milliseconds())
		toolSpan.SetStatus(status, "")
		toolSpan.End()
	}

	w.Write(response)
	return 0
}

// startToolExecutionSpan begins the tool-category span for a completed
// tool invocation observed via PostToolUse, carrying the attributes the
// hook-event span only mirrors a subset of.
func (o *Orchestrator) startToolExecutionSpan(parent *tracer.Span, ev Event, useID string) *tracer.Span {
	span := o.Tracer.StartToolSpan(ev.ToolName, parent)
	span.SetAttribute("tool.name", ev.ToolName)
	span.SetAttribute("tool.input", string(ev.ToolInput))
	span.SetAttribute("tool.output", ev.ToolResponse)
	if useID != "" {
		span.SetAttribute("tool.use_id", useID)
	}
	return span
}

// discoverCommands reads the settings files in precedence order, filters
// tool-scoped events by the declared matcher, and deduplicates across
// files, skipping the orchestrator's own path (cycle guard).
func (o *Orchestrator) discoverCommands(ev Event) []HookCommand {
	var out []HookCommand
	seen := map[string]bool{}

	for _, path := range o.Settings {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		hooksField := "hooks." + ev.HookEventName
		result := gjson.GetBytes(data, hooksField)
		if !result.Exists() {
			continue
		}
		result.ForEach(func(_, group gjson.Result) bool {
			matcher := group.Get("matcher").String()
			if matcher != "" && isToolScoped(ev.HookEventName) {
				matched, err := regexp.MatchString(matcher, ev.ToolName)
				if err != nil || !matched {
					return true
				}
			}
			group.Get("hooks").ForEach(func(_, h gjson.Result) bool {
				cmd := h.Get("command").String()
				if cmd == "" || seen[cmd] {
					return true
				}
				if o.isSelf(cmd) {
					return true
				}
				seen[cmd] = true
				out = append(out, HookCommand{Command: cmd, Matcher: matcher, Source: path})
				return true
			})
			return true
		})
	}
	return out
}

// annotateToolUse is the PostToolUse half of tool-use correlation: look up
// the tool_use intention recorded from the matching API response and, if
// found, carry its provider-assigned id on the span. Returns the matched
// id, or "" if nothing matched.
func (o *Orchestrator) annotateToolUse(span *tracer.Span, ev Event) string {
	span.SetAttribute("tool.name", ev.ToolName)
	span.SetAttribute("tool.input", string(ev.ToolInput))
	span.SetAttribute("tool.output", ev.ToolResponse)
	if o.Correlator == nil {
		return ""
	}
	useID := o.Correlator.Match(ev.ToolName, ev.ToolInput)
	if useID != "" {
		span.SetAttribute("tool.use_id", useID)
	}
	return useID
}

func isToolScoped(event string) bool {
	return event == "PreToolUse" || event == "PostToolUse"
}

func (o *Orchestrator) isSelf(command string) bool {
	if o.OrchestratorPath == "" {
		return false
	}
	return filepath.Clean(command) == filepath.Clean(o.OrchestratorPath) ||
		bytes.Contains([]byte(command), []byte(o.OrchestratorPath))
}

// executeCommands runs each discovered command serially, with no
// speculative parallelism, to preserve user-configured precedence for
// blocking decisions, merging responses first-wins.
func (o *Orchestrator) executeCommands(ctx context.Context, parent *tracer.Span, commands []HookCommand, eventJSON []byte) ([]byte, otlp.StatusCode, int64) {
	composite := []byte(`{"continue":true}`)
	overallStatus := otlp.StatusOK
	var aggregateExit int64

	for _, hc := range commands {
		execSpan := o.Tracer.StartHookExecutionSpan(hc.Command, parent)
		result := procintercept.Run(ctx, "/bin/sh", []string{"-c", hc.Command}, eventJSON)

		execSpan.SetAttribute("hook.command", hc.Command)
		execSpan.SetIntAttribute("hook.exit_code", int64(result.ExitCode))
		execSpan.SetIntAttribute("hook.duration.ms", result.Duration.Milliseconds())
		execSpan.SetIntAttribute("hook.stdout_length", int64(len(result.Stdout)))
		execSpan.SetIntAttribute("hook.stderr_length", int64(len(result.Stderr)))
		if result.Err != nil {
			execSpan.SetAttribute("hook.error", result.Err.Error())
		}

		if result.ExitCode != 0 || result.Err != nil {
			overallStatus = otlp.StatusError
			execSpan.SetStatus(otlp.StatusError, "")
			if aggregateExit == 0 {
				aggregateExit = int64(result.ExitCode)
			}
		} else {
			execSpan.SetStatus(otlp.StatusOK, "")
		}
		execSpan.End()

		var parsed map[string]any
		if err := json.Unmarshal(result.Stdout, &parsed); err != nil {
			continue
		}
		if cont, ok := parsed["continue"].(bool); ok && !cont {
			blocking, err := json.Marshal(parsed)
			if err == nil {
				return blocking, otlp.StatusOK, aggregateExit
			}
		}
		composite = mergeFirstWins(composite, parsed)
	}

	return composite, overallStatus, aggregateExit
}

// mergeFirstWins folds the first non-empty value for each recognized
// field into composite, leaving fields already set untouched.
func mergeFirstWins(composite []byte, parsed map[string]any) []byte {
	for _, field := range []string{"stopReason", "decision", "reason", "suppressOutput"} {
		if gjson.GetBytes(composite, field).Exists() {
			continue
		}
		v, ok := parsed[field]
		if !ok || v == nil || v == "" {
			continue
		}
		updated, err := sjson.SetBytes(composite, field, v)
		if err == nil {
			composite = updated
		}
	}
	return composite
}
