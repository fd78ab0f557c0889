// Package transcript reads the agent's JSONL conversation transcript.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strings"
)

type entry struct {
	Type    string `json:"type"`
	Message *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type block struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

// content is a decoded message body: either a plain string or blocks.
type content struct {
	text     string
	isText   bool
	blocks   []json.RawMessage
	isBlocks bool
}

func (e *entry) content() content {
	if e.Message == nil || len(e.Message.Content) == 0 {
		return content{}
	}
	var s string
	if err := json.Unmarshal(e.Message.Content, &s); err == nil {
		return content{text: s, isText: true}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(e.Message.Content, &list); err == nil {
		return content{blocks: list, isBlocks: true}
	}
	return content{}
}

// decodeBlock returns the block and whether raw was an object. Bare strings
// come back as text blocks.
func decodeBlock(raw json.RawMessage) (block, bool) {
	var b block
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return block{Text: s}, false
	}
	return block{}, false
}

// isRealUser reports whether e is a message the human typed, as opposed to
// a tool result fed back to the model.
func (e *entry) isRealUser() bool {
	if e.Type != "user" || e.Message == nil {
		return false
	}
	c := e.content()
	if c.isText {
		return true
	}
	if !c.isBlocks {
		return false
	}
	for _, raw := range c.blocks {
		if b, ok := decodeBlock(raw); ok && b.Type == "tool_result" {
			return false
		}
	}
	return true
}

// readEntries parses every line of the transcript. Malformed lines are kept
// as nil so indexes stay aligned with the file.
func readEntries(path string) ([]*entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []*entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			out = append(out, nil)
			continue
		}
		out = append(out, &e)
	}
	return out, sc.Err()
}

func lastRealUser(entries []*entry) int {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i] != nil && entries[i].isRealUser() {
			return i
		}
	}
	return -1
}

// LastUserText returns the text of the last message the human typed. A
// missing path or file yields "" and no error.
func LastUserText(path string) (string, error) {
	entries, err := load(path)
	if err != nil || entries == nil {
		return "", err
	}
	i := lastRealUser(entries)
	if i < 0 {
		return "", nil
	}
	c := entries[i].content()
	if c.isText {
		return c.text, nil
	}
	var parts []string
	for _, raw := range c.blocks {
		b, _ := decodeBlock(raw)
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// Turn is the assistant's output after the last user message.
type Turn struct {
	Text string
	// Tools counts tool_use blocks by tool name.
	Tools map[string]int
}

// LastTurn collects assistant text and tool usage after the last real user
// message. Text blocks within one message are joined by a newline, messages
// by a blank line.
func LastTurn(path string) (Turn, error) {
	t := Turn{Tools: map[string]int{}}
	entries, err := load(path)
	if err != nil || entries == nil {
		return t, err
	}

	var texts []string
	for _, e := range entries[lastRealUser(entries)+1:] {
		if e == nil || e.Type != "assistant" {
			continue
		}
		c := e.content()
		switch {
		case c.isText:
			if c.text != "" {
				texts = append(texts, c.text)
			}
		case c.isBlocks:
			var parts []string
			for _, raw := range c.blocks {
				b, isObj := decodeBlock(raw)
				switch {
				case !isObj:
					if s := strings.TrimSpace(b.Text); s != "" {
						parts = append(parts, s)
					}
				case b.Type == "text":
					if s := strings.TrimSpace(b.Text); s != "" {
						parts = append(parts, s)
					}
				case b.Type == "tool_use":
					name := b.Name
					if name == "" {
						name = "unknown"
					}
					t.Tools[name]++
				}
			}
			if len(parts) > 0 {
				texts = append(texts, strings.Join(parts, "\n"))
			}
		}
	}
	t.Text = strings.Join(texts, "\n\n")
	return t, nil
}

func load(path string) ([]*entry, error) {
	if path == "" {
		return nil, nil
	}
	entries, err := readEntries(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}
