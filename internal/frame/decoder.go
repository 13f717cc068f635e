// Package frame splits a streamed response body into application-level frames.
//
// A Decoder is fed text chunks as they arrive and returns every frame that is
// complete so far. Chunk boundaries never change the result: feeding a body in
// one call or in arbitrary pieces yields the same ordered frames.
package frame

import (
	"bytes"
	"strings"
)

// Decoder turns a sequence of text chunks into frames.
type Decoder interface {
	// Feed appends chunk to the internal buffer and returns the frames it completed.
	Feed(chunk string) []string
	// Finish flushes the buffer at end of stream. It returns at most one frame.
	Finish() []string
}

// Delimited frames a body on a literal delimiter token.
// Whitespace-only pieces between delimiters are discarded.
type Delimited struct {
	delim string
	sep   []byte
	buf   []byte
	// scanned is the offset below which buf holds no start of a delimiter.
	scanned int
}

// NewDelimited returns a Decoder that splits on delim. It panics if delim is empty.
func NewDelimited(delim string) *Delimited {
	if delim == "" {
		panic("frame: empty delimiter")
	}
	return &Delimited{delim: delim, sep: []byte(delim)}
}

// NewLines returns a newline-delimited Decoder (NDJSON bodies).
func NewLines() *Delimited {
	return NewDelimited("\n")
}

// Delimiter returns the token this decoder splits on.
func (d *Delimited) Delimiter() string {
	return d.delim
}

// Feed implements Decoder. Each call scans only the bytes it has not seen,
// plus a delimiter-length overlap for a token split across chunks.
func (d *Delimited) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var frames []string
	start, from := 0, d.scanned
	for {
		idx := bytes.Index(d.buf[from:], d.sep)
		if idx < 0 {
			break
		}
		end := from + idx
		if piece := d.buf[start:end]; len(bytes.TrimSpace(piece)) > 0 {
			frames = append(frames, string(piece))
		}
		start = end + len(d.sep)
		from = start
	}

	if start > 0 {
		n := copy(d.buf, d.buf[start:])
		d.buf = d.buf[:n]
	}
	d.scanned = max(0, len(d.buf)-len(d.sep)+1)
	return frames
}

// Finish implements Decoder.
func (d *Delimited) Finish() []string {
	rest := string(d.buf)
	d.buf = d.buf[:0]
	d.scanned = 0
	return nonBlank(rest)
}

// Whole buffers the entire body and emits it as one frame at end of stream.
type Whole struct {
	buf strings.Builder
}

// NewWhole returns a Decoder for protocols that send a single record per response.
func NewWhole() *Whole {
	return &Whole{}
}

// Feed implements Decoder. It never returns frames.
func (w *Whole) Feed(chunk string) []string {
	w.buf.WriteString(chunk)
	return nil
}

// Finish implements Decoder.
func (w *Whole) Finish() []string {
	rest := w.buf.String()
	w.buf.Reset()
	return nonBlank(rest)
}

// nonBlank returns rest as a single frame unless it is blank.
func nonBlank(rest string) []string {
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	return []string{rest}
}
