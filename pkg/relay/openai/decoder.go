package openai

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// chatChunk is the streaming chunk format.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder turns raw byte chunks from a streaming response into content-delta
// tokens. It owns the transient decode state for one in-flight call: a
// partial UTF-8 tail held back across chunk boundaries, and a partial
// `data:` line held back until its line feed arrives. Malformed payload
// lines are skipped; the [DONE] sentinel ends the token stream without
// producing output.
type Decoder struct {
	byteRem []byte
	lineRem string
	done    bool
}

// Feed consumes one byte chunk and returns the tokens completed by it, in
// arrival order.
func (d *Decoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	buf := append(d.byteRem, chunk...)
	cut := completeUTF8Prefix(buf)
	text := string(buf[:cut])
	d.byteRem = append([]byte(nil), buf[cut:]...)

	lines := strings.Split(d.lineRem+text, "\n")
	d.lineRem = lines[len(lines)-1]

	var tokens []string
	for _, line := range lines[:len(lines)-1] {
		if token, ok := d.decodeLine(line); ok {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// Flush drains any trailing line that was never terminated by a line feed.
// Call once, after the last Feed.
func (d *Decoder) Flush() []string {
	line := d.lineRem + string(d.byteRem)
	d.byteRem = nil
	d.lineRem = ""
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if token, ok := d.decodeLine(line); ok {
		return []string{token}
	}
	return nil
}

// Done reports whether the [DONE] sentinel has been observed.
func (d *Decoder) Done() bool {
	return d.done
}

func (d *Decoder) decodeLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "data: ") {
		return "", false
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
	if data == "[DONE]" {
		d.done = true
		return "", false
	}

	var chunk chatChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Partial or malformed payload: this line's content is lost, the
		// stream continues.
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}
	content := chunk.Choices[0].Delta.Content
	if content == "" {
		return "", false
	}
	return content, true
}

// completeUTF8Prefix returns the length of the longest prefix of b that does
// not end in a truncated multi-byte sequence. Invalid bytes that cannot start
// a rune are passed through rather than held forever.
func completeUTF8Prefix(b []byte) int {
	n := len(b)
	for back := 1; back <= utf8.UTFMax && back <= n; back++ {
		c := b[n-back]
		if c&0xC0 == 0x80 {
			// Continuation byte, keep scanning for the rune start.
			continue
		}
		want := runeByteLen(c)
		if want > back {
			// Rune start whose sequence is still incomplete.
			return n - back
		}
		return n
	}
	return n
}

func runeByteLen(c byte) int {
	switch {
	case c&0x80 == 0x00:
		return 1
	case c&0xE0 == 0xC0:
		return 2
	case c&0xF0 == 0xE0:
		return 3
	case c&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}
