// Package framing reassembles newline-delimited records from arbitrarily
// chunked byte streams.
package framing

import (
	"bytes"
	"strings"
)

const dataPrefix = "data:"

// LineDecoder buffers partial input and yields complete lines.
// Splitting happens on the '\n' byte, which never appears inside a UTF-8
// multi-byte sequence, so a codepoint cut across chunks is decoded whole.
type LineDecoder struct {
	buf []byte
}

// NewLineDecoder creates an empty decoder.
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{}
}

// Feed appends chunk and returns every line it completed, without terminators.
func (d *LineDecoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, trimCR(d.buf[:idx]))
		d.buf = d.buf[idx+1:]
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return lines
}

// Flush returns the buffered partial line, if any, and resets the decoder.
func (d *LineDecoder) Flush() (string, bool) {
	if len(d.buf) == 0 {
		return "", false
	}
	line := trimCR(d.buf)
	d.buf = nil
	return line, true
}

// Buffered reports how many bytes are waiting for a terminator.
func (d *LineDecoder) Buffered() int {
	return len(d.buf)
}

// DataPayload extracts the trimmed payload of an SSE "data:" line.
// Any other line (event:, id:, comments, blanks) yields false.
func DataPayload(line string) (string, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(dataPrefix):]), true
}

func trimCR(line []byte) string {
	return string(bytes.TrimSuffix(line, []byte{'\r'}))
}
