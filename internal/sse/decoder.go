// ABOUTME: Incremental decoder for data:-framed server-sent event streams
// ABOUTME: Yields one reconstructed payload per event and stops at the [DONE] sentinel

package sse

import (
	"bytes"
	"io"
	"strings"
)

// doneSentinel is the reserved payload marking normal stream termination.
// It is consumed by the decoder and never surfaced to callers.
const doneSentinel = "[DONE]"

const readChunkSize = 4096

// Decoder turns a raw event-stream body into a sequence of decoded payload
// strings, one per event. It is lazy (reads the source only when asked for
// the next payload), finite, and not restartable: after the first terminal
// result every subsequent Next call returns the same outcome.
//
// Framing rules:
//
//   - events are separated by a blank line; CR and CRLF line endings are
//     normalized to LF before the delimiter search
//   - within an event, each "data:" line contributes one payload line; the
//     lines are rejoined with "\n" to rebuild multi-line payloads
//   - lines without the data marker (comments, other fields) are ignored
//   - a payload equal to the sentinel ends the stream immediately, even if
//     further events are already buffered
//   - empty payloads are filtered out
//
// Framing operates on raw bytes and only splits at LF, so a multi-byte
// UTF-8 rune divided across two reads is never corrupted.
type Decoder struct {
	r      io.Reader
	read   []byte
	buf    []byte
	srcErr error // pending error from the source, surfaced once buf drains
	err    error // terminal state, sticky
	crSeen bool  // last appended byte was a normalized CR
}

// NewDecoder wraps r, which is typically a streaming HTTP response body.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, read: make([]byte, readChunkSize)}
}

// Next returns the next decoded payload. io.EOF signals normal termination
// (the sentinel was seen or the source closed cleanly); any other error is
// a read failure propagated from the source. Data decoded before a failure
// has already been returned and remains valid.
func (d *Decoder) Next() (string, error) {
	if d.err != nil {
		return "", d.err
	}

	for {
		// Drain complete events already in the buffer before reading more.
		for {
			block, ok := d.takeEvent()
			if !ok {
				break
			}
			payload := parseEvent(block)
			if payload == doneSentinel {
				d.err = io.EOF
				return "", d.err
			}
			if payload == "" {
				continue
			}
			return payload, nil
		}

		if d.srcErr != nil {
			// A trailing event without a closing blank line still counts
			// as one event when the source ends cleanly.
			if d.srcErr == io.EOF && len(d.buf) > 0 {
				payload := parseEvent(d.buf)
				d.buf = nil
				if payload != doneSentinel && payload != "" {
					return payload, nil
				}
			}
			d.err = d.srcErr
			return "", d.err
		}

		n, err := d.r.Read(d.read)
		if n > 0 {
			d.fill(d.read[:n])
		}
		if err != nil {
			// Defer the error until buffered events are drained, so data
			// received before the failure is still delivered in order.
			d.srcErr = err
		}
	}
}

// fill appends a fragment to the buffer, normalizing CRLF and lone CR line
// endings to LF. The CR state survives across fragments so a CRLF split
// between two reads is still collapsed to one LF.
func (d *Decoder) fill(p []byte) {
	for _, b := range p {
		if d.crSeen {
			d.crSeen = false
			if b == '\n' {
				continue
			}
		}
		if b == '\r' {
			d.buf = append(d.buf, '\n')
			d.crSeen = true
			continue
		}
		d.buf = append(d.buf, b)
	}
}

// takeEvent removes and returns the next complete event block from the
// buffer, or reports false if no blank-line delimiter is present yet.
func (d *Decoder) takeEvent() ([]byte, bool) {
	i := bytes.Index(d.buf, []byte("\n\n"))
	if i < 0 {
		return nil, false
	}
	block := d.buf[:i]
	d.buf = d.buf[i+2:]
	return block, true
}

// parseEvent rebuilds one logical payload from an event block: every data
// line is stripped of its marker (and one optional following space, per the
// SSE convention) and the lines are rejoined with "\n". An event with no
// data lines yields the empty string.
func parseEvent(block []byte) string {
	var parts []string
	for _, line := range strings.Split(string(block), "\n") {
		rest, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		parts = append(parts, strings.TrimPrefix(rest, " "))
	}
	return strings.Join(parts, "\n")
}
