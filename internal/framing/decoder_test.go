package framing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/chatrelay/internal/framing"
)

func collect(d *framing.LineDecoder, chunks ...[]byte) []string {
	var lines []string
	for _, chunk := range chunks {
		lines = append(lines, d.Feed(chunk)...)
	}
	if tail, ok := d.Flush(); ok {
		lines = append(lines, tail)
	}
	return lines
}

func TestLineDecoder_Feed(t *testing.T) {
	t.Run("should return complete lines and keep the tail", func(t *testing.T) {
		d := framing.NewLineDecoder()

		require.Equal(t, []string{"data: a"}, d.Feed([]byte("data: a\ndata: b")))
		require.Equal(t, len("data: b"), d.Buffered())
		require.Equal(t, []string{"data: bc"}, d.Feed([]byte("c\n")))
		require.Equal(t, 0, d.Buffered())
	})

	t.Run("should strip carriage returns before newline", func(t *testing.T) {
		d := framing.NewLineDecoder()
		require.Equal(t, []string{"one", "", "two"}, d.Feed([]byte("one\r\n\r\ntwo\r\n")))
	})

	t.Run("should reassemble lines under every split point", func(t *testing.T) {
		input := []byte("data: héllo 世界 🎉\r\n\r\ndata: [DONE]\n")
		want := collect(framing.NewLineDecoder(), input)
		require.Equal(t, []string{"data: héllo 世界 🎉", "", "data: [DONE]"}, want)

		for split := 0; split <= len(input); split++ {
			got := collect(framing.NewLineDecoder(), input[:split], input[split:])
			require.Equal(t, want, got, "split at byte %d", split)
		}
	})

	t.Run("should reassemble byte by byte", func(t *testing.T) {
		input := []byte("data: {\"text\":\"ü→😀\"}\n")
		d := framing.NewLineDecoder()

		var lines []string
		for i := range input {
			lines = append(lines, d.Feed(input[i:i+1])...)
		}
		require.Equal(t, []string{`data: {"text":"ü→😀"}`}, lines)
	})
}

func TestLineDecoder_Flush(t *testing.T) {
	t.Run("should return trailing partial line once", func(t *testing.T) {
		d := framing.NewLineDecoder()
		d.Feed([]byte("data: tail\r"))

		line, ok := d.Flush()
		require.True(t, ok)
		require.Equal(t, "data: tail", line)

		_, ok = d.Flush()
		require.False(t, ok)
	})
}

func TestDataPayload(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		payload string
		ok      bool
	}{
		{name: "data with space", line: "data: {\"a\":1}", payload: `{"a":1}`, ok: true},
		{name: "data without space", line: "data:[DONE]", payload: "[DONE]", ok: true},
		{name: "data with padding", line: "data:   x  ", payload: "x", ok: true},
		{name: "empty data", line: "data:", payload: "", ok: true},
		{name: "event line", line: "event: message_start", ok: false},
		{name: "comment", line: ": keep-alive", ok: false},
		{name: "blank", line: "", ok: false},
	}

	for _, tt := range tests {
		t.Run("should handle "+tt.name, func(t *testing.T) {
			payload, ok := framing.DataPayload(tt.line)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.payload, payload)
		})
	}
}
