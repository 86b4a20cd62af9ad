// Package report reads the JSONL OTLP file, reconstructs the span tree,
// computes aggregate metrics, and inlines the result plus a pre-built JS
// viewer bundle into a single self-contained HTML file.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pkg/browser"

	"ccprofile/internal/otlp"
)

// Materialize reads tracePath and writes a self-contained HTML report to
// reportPath. A missing or empty trace file produces a valid empty-state
// report rather than an error.
func Materialize(tracePath, reportPath string, openInBrowser bool, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	spans := readSpans(tracePath, log)
	doc := Build(spans)

	html, err := Render(doc)
	if err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	if err := os.WriteFile(reportPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", reportPath, err)
	}
	if openInBrowser {
		if err := browser.OpenFile(reportPath); err != nil {
			log.Warn("report: failed to open browser", "error", err)
		}
	}
	return nil
}

// readSpans parses every JSONL line as an OTLP document, skipping
// malformed lines with a warning, and flattens
// resourceSpans.scopeSpans.spans into one list.
func readSpans(path string, log *slog.Logger) []otlp.Span {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var spans []otlp.Span
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc otlp.ResourceSpansDoc
		if err := json.Unmarshal(line, &doc); err != nil {
			log.Warn("report: skipping malformed trace line", "line", lineNo, "error", err)
			continue
		}
		for _, rs := range doc.ResourceSpans {
			for _, ss := range rs.ScopeSpans {
				spans = append(spans, ss.Spans...)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("report: error scanning trace file", "error", err)
	}
	return spans
}

// Build reconstructs the span tree and computes aggregate metrics over it.
func Build(spans []otlp.Span) Document {
	flat := make([]FlatSpan, 0, len(spans))
	byID := make(map[string]*Node, len(spans))
	for _, s := range spans {
		fs := FlatSpan{Span: s, Category: Categorize(s)}
		flat = append(flat, fs)
		byID[s.SpanID] = &Node{Span: fs}
	}

	var roots []*Node
	for _, fs := range flat {
		node := byID[fs.SpanID]
		if fs.ParentSpanID != "" {
			if parent, ok := byID[fs.ParentSpanID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	if len(roots) > 1 {
		roots = []*Node{synthesizeRoot(roots)}
	}

	agg := computeAggregate(flat, roots)
	return Document{Roots: roots, Aggregate: agg}
}

// synthesizeRoot introduces a synthetic session root spanning
// [min(startTime), max(endTime)] over multiple genuine roots.
func synthesizeRoot(roots []*Node) *Node {
	minStart, maxEnd := roots[0].Span.StartTimeUnixNano, roots[0].Span.EndTimeUnixNano
	for _, r := range roots {
		if r.Span.StartTimeUnixNano < minStart {
			minStart = r.Span.StartTimeUnixNano
		}
		if r.Span.EndTimeUnixNano > maxEnd {
			maxEnd = r.Span.EndTimeUnixNano
		}
	}
	synthetic := FlatSpan{
		Span: otlp.Span{
			Name:              "Session",
			Kind:              otlp.KindInternal,
			StartTimeUnixNano: minStart,
			EndTimeUnixNano:   maxEnd,
		},
		Category: CategoryOther,
	}
	return &Node{Span: synthetic, Children: roots}
}

func computeAggregate(flat []FlatSpan, roots []*Node) Aggregate {
	agg := Aggregate{CategoryCount: make(map[Category]int)}
	agg.SpanCount = len(flat)
	for _, fs := range flat {
		agg.CategoryCount[fs.Category]++
		if fs.Category == CategoryAPI {
			agg.TotalInputTokens += fs.IntAttr("ai.tokens.input")
			agg.TotalOutputTokens += fs.IntAttr("ai.tokens.output")
			agg.TotalCostUSD += fs.FloatAttr("ai.cost.usd")
		}
	}
	if len(roots) == 1 {
		start := parseNano(roots[0].Span.StartTimeUnixNano)
		end := parseNano(roots[0].Span.EndTimeUnixNano)
		agg.DurationMs = (end - start) / 1_000_000
	}
	return agg
}

func parseNano(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
