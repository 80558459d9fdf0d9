package openai

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func dataLine(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`+"\n\n", content)
}

func feedAll(t *testing.T, d *Decoder, stream []byte, chunkSize int) []string {
	t.Helper()
	var tokens []string
	for start := 0; start < len(stream); start += chunkSize {
		end := start + chunkSize
		if end > len(stream) {
			end = len(stream)
		}
		tokens = append(tokens, d.Feed(stream[start:end])...)
	}
	tokens = append(tokens, d.Flush()...)
	return tokens
}

func TestDecoder_SingleLine(t *testing.T) {
	var d Decoder
	got := d.Feed([]byte(dataLine("hello")))
	if !reflect.DeepEqual(got, []string{"hello"}) {
		t.Fatalf("tokens=%v", got)
	}
}

func TestDecoder_ChunkSplitInvariance(t *testing.T) {
	stream := []byte(
		dataLine("こん") +
			dataLine("にちは") +
			dataLine("。") +
			dataLine("元気") +
			dataLine("？") +
			"data: [DONE]\n\n")
	want := []string{"こん", "にちは", "。", "元気", "？"}

	for size := 1; size <= len(stream); size++ {
		var d Decoder
		got := feedAll(t, &d, stream, size)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("size=%d: tokens=%v, want %v", size, got, want)
		}
		if !d.Done() {
			t.Fatalf("size=%d: sentinel not observed", size)
		}
	}
}

func TestDecoder_SplitInsideMultiByteRune(t *testing.T) {
	line := []byte(dataLine("日本語"))
	// Split in the middle of the UTF-8 bytes of 本.
	cut := strings.Index(string(line), "本") + 1
	var d Decoder
	var got []string
	got = append(got, d.Feed(line[:cut])...)
	got = append(got, d.Feed(line[cut:])...)
	got = append(got, d.Flush()...)
	if !reflect.DeepEqual(got, []string{"日本語"}) {
		t.Fatalf("tokens=%v", got)
	}
	for _, tok := range got {
		if strings.ContainsRune(tok, '�') {
			t.Fatalf("replacement character in %q", tok)
		}
	}
}

func TestDecoder_DoneSentinelEmitsNothing(t *testing.T) {
	var d Decoder
	got := d.Feed([]byte("data: [DONE]\n\n"))
	if len(got) != 0 {
		t.Fatalf("tokens=%v, want none", got)
	}
	if !d.Done() {
		t.Fatal("Done()=false after sentinel")
	}
}

func TestDecoder_SkipsMalformedAndForeignLines(t *testing.T) {
	var d Decoder
	stream := "event: ping\n" +
		"\n" +
		"data: {not json\n" +
		dataLine("ok") +
		`data: {"choices":[]}` + "\n"
	got := d.Feed([]byte(stream))
	if !reflect.DeepEqual(got, []string{"ok"}) {
		t.Fatalf("tokens=%v, want [ok]", got)
	}
}

func TestDecoder_EmptyContentNotEmitted(t *testing.T) {
	var d Decoder
	got := d.Feed([]byte(`data: {"choices":[{"delta":{}}]}` + "\n"))
	if len(got) != 0 {
		t.Fatalf("tokens=%v, want none", got)
	}
}

func TestDecoder_FlushDrainsUnterminatedLine(t *testing.T) {
	var d Decoder
	if got := d.Feed([]byte(strings.TrimSuffix(dataLine("tail"), "\n\n"))); len(got) != 0 {
		t.Fatalf("tokens before flush=%v", got)
	}
	got := d.Flush()
	if !reflect.DeepEqual(got, []string{"tail"}) {
		t.Fatalf("flushed=%v, want [tail]", got)
	}
}

func TestDecoder_CRLFLines(t *testing.T) {
	var d Decoder
	got := d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\r\n\r\n"))
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("tokens=%v", got)
	}
}
