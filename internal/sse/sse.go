// Package sse parses Anthropic Messages API server-sent-event streams
// with a scanner-driven accumulate-on-blank-line loop, decoding the
// message_start/content_block_delta/message_delta/message_stop taxonomy.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// RawEvent is one parsed `data:` payload before taxonomy-specific decoding.
type RawEvent struct {
	Raw  json.RawMessage
	Type string
}

// ParseStream scans r for SSE frames, joining multi-line `data:` blocks and
// flushing on the blank line that terminates each frame. The `[DONE]`
// terminator and comment lines (leading `:`) are skipped, matching the
// teacher's ParseStream exactly.
func ParseStream(r io.Reader, emit func(RawEvent) error) error {
	s := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 1024*1024)

	var dataLines []string
	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		joined := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		if strings.TrimSpace(joined) == "" || strings.TrimSpace(joined) == "[DONE]" {
			return nil
		}
		raw := json.RawMessage(joined)
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil
		}
		return emit(RawEvent{Raw: raw, Type: head.Type})
	}

	for s.Scan() {
		line := s.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := s.Err(); err != nil {
		return err
	}
	return flush()
}

// Usage mirrors the Anthropic usage object; pointer fields distinguish
// "absent" from "zero" for the merge policy in Collector.mergeUsage.
type Usage struct {
	InputTokens              *int64 `json:"input_tokens"`
	OutputTokens             *int64 `json:"output_tokens"`
	CacheReadInputTokens     *int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens *int64 `json:"cache_creation_input_tokens"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type delta struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	PartialJSON string `json:"partial_json"`
}

// ToolUse is one tool_use content block fully observed in the stream.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Collector accumulates a single Anthropic Messages API stream into the
// final text, any tool_use blocks, and the merged usage totals.
type Collector struct {
	text        strings.Builder
	blockType   map[int]string
	blockText   map[int]*strings.Builder
	blockID     map[int]string
	blockName   map[int]string
	toolUses    []ToolUse
	usage       Usage
	model       string
	stopReason  string
}

func NewCollector() *Collector {
	return &Collector{
		blockType: map[int]string{},
		blockText: map[int]*strings.Builder{},
		blockID:   map[int]string{},
		blockName: map[int]string{},
	}
}

// Observe feeds one parsed event into the collector.
func (c *Collector) Observe(ev RawEvent) {
	switch ev.Type {
	case "message_start":
		var payload struct {
			Message struct {
				Model string `json:"model"`
				Usage Usage  `json:"usage"`
			} `json:"message"`
		}
		if json.Unmarshal(ev.Raw, &payload) == nil {
			c.model = payload.Message.Model
			c.mergeUsage(payload.Message.Usage)
		}
	case "content_block_start":
		var payload struct {
			Index        int          `json:"index"`
			ContentBlock contentBlock `json:"content_block"`
		}
		if json.Unmarshal(ev.Raw, &payload) == nil {
			c.blockType[payload.Index] = payload.ContentBlock.Type
			c.blockID[payload.Index] = payload.ContentBlock.ID
			c.blockName[payload.Index] = payload.ContentBlock.Name
			c.blockText[payload.Index] = &strings.Builder{}
			// The start event usually carries an empty `{}` placeholder input;
			// seeding it would corrupt the JSON the input_json_delta events build.
			if payload.ContentBlock.Type == "tool_use" && len(payload.ContentBlock.Input) > 0 &&
				strings.TrimSpace(string(payload.ContentBlock.Input)) != "{}" {
				c.blockText[payload.Index].Write(payload.ContentBlock.Input)
			}
		}
	case "content_block_delta":
		var payload struct {
			Index int   `json:"index"`
			Delta delta `json:"delta"`
		}
		if json.Unmarshal(ev.Raw, &payload) == nil {
			b := c.ensureBlock(payload.Index)
			switch payload.Delta.Type {
			case "text_delta":
				c.text.WriteString(payload.Delta.Text)
				b.WriteString(payload.Delta.Text)
			case "input_json_delta":
				b.WriteString(payload.Delta.PartialJSON)
			}
		}
	case "content_block_stop":
		var payload struct {
			Index int `json:"index"`
		}
		if json.Unmarshal(ev.Raw, &payload) == nil && c.blockType[payload.Index] == "tool_use" {
			b := c.blockText[payload.Index]
			raw := json.RawMessage("{}")
			if b != nil && b.Len() > 0 {
				raw = json.RawMessage(b.String())
			}
			c.toolUses = append(c.toolUses, ToolUse{
				ID:    c.blockID[payload.Index],
				Name:  c.blockName[payload.Index],
				Input: raw,
			})
		}
	case "message_delta":
		var payload struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
			Usage Usage `json:"usage"`
		}
		if json.Unmarshal(ev.Raw, &payload) == nil {
			if payload.Delta.StopReason != "" {
				c.stopReason = payload.Delta.StopReason
			}
			c.mergeUsage(payload.Usage)
		}
	case "message_stop":
		// no additional fields carried by this event.
	}
}

func (c *Collector) ensureBlock(index int) *strings.Builder {
	if b, ok := c.blockText[index]; ok {
		return b
	}
	b := &strings.Builder{}
	c.blockText[index] = b
	return b
}

// mergeUsage implements the resolved Open Question: field-wise "later
// non-null overrides earlier", except InputTokens is sticky once observed
// (message_start's value must survive later partial message_delta updates
// that omit it).
func (c *Collector) mergeUsage(u Usage) {
	if u.InputTokens != nil && c.usage.InputTokens == nil {
		c.usage.InputTokens = u.InputTokens
	}
	if u.OutputTokens != nil {
		c.usage.OutputTokens = u.OutputTokens
	}
	if u.CacheReadInputTokens != nil {
		c.usage.CacheReadInputTokens = u.CacheReadInputTokens
	}
	if u.CacheCreationInputTokens != nil {
		c.usage.CacheCreationInputTokens = u.CacheCreationInputTokens
	}
}

func (c *Collector) OutputText() string  { return c.text.String() }
func (c *Collector) Model() string       { return c.model }
func (c *Collector) StopReason() string  { return c.stopReason }
func (c *Collector) ToolUses() []ToolUse { return c.toolUses }
func (c *Collector) Usage() Usage        { return c.usage }
