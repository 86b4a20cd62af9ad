package report

import (
	"strconv"
	"strings"

	"ccprofile/internal/otlp"
)

// Category is the derived span bucket shown in the report viewer.
type Category string

const (
	CategoryAPI   Category = "api"
	CategoryTool  Category = "tool"
	CategoryHook  Category = "hook"
	CategoryFile  Category = "file"
	CategoryTest  Category = "test"
	CategoryOther Category = "other"
)

// FlatSpan is one span plus its derived category, flattened out of the
// nested OTLP document structure for easier tree-building.
type FlatSpan struct {
	otlp.Span
	Category Category
}

// Attr looks up a string-valued attribute, returning "" if absent or not
// a string.
func (f FlatSpan) Attr(key string) string {
	for _, a := range f.Attributes {
		if a.Key == key && a.Value.StringValue != nil {
			return *a.Value.StringValue
		}
	}
	return ""
}

func (f FlatSpan) IntAttr(key string) int64 {
	for _, a := range f.Attributes {
		if a.Key == key && a.Value.IntValue != nil {
			v, _ := strconv.ParseInt(*a.Value.IntValue, 10, 64)
			return v
		}
	}
	return 0
}

func (f FlatSpan) FloatAttr(key string) float64 {
	for _, a := range f.Attributes {
		if a.Key == key && a.Value.DoubleValue != nil {
			return *a.Value.DoubleValue
		}
	}
	return 0
}

// Categorize derives a span's category from its name and attributes.
func Categorize(s otlp.Span) Category {
	flat := FlatSpan{Span: s}
	switch {
	case s.Kind == otlp.KindClient && strings.HasPrefix(s.Name, "API "):
		return CategoryAPI
	case strings.HasPrefix(s.Name, "Tool: "):
		return CategoryTool
	case strings.HasPrefix(s.Name, "Hook: ") || strings.HasPrefix(s.Name, "Exec: "):
		return CategoryHook
	case flat.Attr("test.name") != "":
		return CategoryTest
	case flat.Attr("file.path") != "":
		return CategoryFile
	default:
		return CategoryOther
	}
}

// Node is one entry in the reconstructed span tree.
type Node struct {
	Span     FlatSpan `json:"span"`
	Children []*Node  `json:"children"`
}

// Aggregate holds the summary statistics computed over a whole run.
type Aggregate struct {
	SpanCount     int              `json:"spanCount"`
	CategoryCount map[Category]int `json:"categoryCount"`
	TotalInputTokens  int64  `json:"totalInputTokens"`
	TotalOutputTokens int64  `json:"totalOutputTokens"`
	TotalCostUSD      float64 `json:"totalCostUsd"`
	DurationMs        int64  `json:"durationMs"`
}

// Document is the JSON literal inlined into report.html.
type Document struct {
	Roots     []*Node   `json:"roots"`
	Aggregate Aggregate `json:"aggregate"`
}
