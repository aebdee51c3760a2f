// Package request builds HTTP/1.x request messages in place inside a
// caller-owned byte buffer. No operation here ever reallocates; on
// insufficient space a Builder reports failure and leaves the buffer
// unchanged.
package request

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/evohttp/evohttp/pkg/constants"
	"github.com/evohttp/evohttp/pkg/errors"
)

// Method is one of the four request methods the builder understands.
type Method int

const (
	GET Method = iota
	HEAD
	POST
	PUT
)

func (m Method) String() string {
	switch m {
	case GET:
		return "GET"
	case HEAD:
		return "HEAD"
	case POST:
		return "POST"
	case PUT:
		return "PUT"
	default:
		return "GET"
	}
}

// Version is the HTTP version written into the request line.
type Version int

const (
	HTTP10 Version = iota
	HTTP11
)

func (v Version) String() string {
	if v == HTTP10 {
		return "1.0"
	}
	return "1.1"
}

// Builder formats a request message into buf, tracking how much of it is
// in use. It never grows buf.
type Builder struct {
	buf []byte
	n   int
}

// NewBuilder wraps buf for in-place formatting. buf's capacity is the hard
// limit on message size; its initial contents are ignored.
func NewBuilder(buf []byte) *Builder {
	return &Builder{buf: buf}
}

// Len returns the number of bytes currently written.
func (b *Builder) Len() int { return b.n }

// Bytes returns the written portion of the underlying buffer.
func (b *Builder) Bytes() []byte { return b.buf[:b.n] }

// Init writes "METHOD SP site SP HTTP/version CRLF" at offset 0, discarding
// anything previously written.
func (b *Builder) Init(method Method, site string, version Version) error {
	line := fmt.Sprintf("%s %s HTTP/%s\r\n", method, site, version)
	if len(line) > len(b.buf) {
		return errors.NewBufferTooSmall("request.Init", "request buffer too small for start line")
	}
	copy(b.buf, line)
	b.n = len(line)
	return nil
}

// SetProperty sets a header line, replacing any existing line for the same
// name. A second call with the same name replaces the first value rather
// than appending a duplicate.
//
// name is matched against the token preceding ':' at the start of a line,
// case-insensitively, avoiding the prefix collision a plain substring search
// is prone to (e.g. "Content-Length" falsely matching
// "Content-Length-Something").
func (b *Builder) SetProperty(name, value string) error {
	line := fmt.Sprintf("%s: %s\r\n", name, value)
	start, end, found := findHeaderLine(b.buf[:b.n], name)
	newLen := b.n
	if found {
		newLen -= end - start
	}
	// Reserve room for the CRLF CRLF terminator Complete will need.
	if newLen+len(line)+2 > len(b.buf) {
		return errors.NewBufferTooSmall("request.SetProperty", "no room for header line plus terminator")
	}
	if found {
		tailLen := b.n - end
		copy(b.buf[start:start+tailLen], b.buf[end:b.n])
		b.n = start + tailLen
	}
	copy(b.buf[b.n:], line)
	b.n += len(line)
	return nil
}

// Complete ensures the header section ends in CRLF CRLF. Calling it again
// on an already-terminated buffer is a no-op, so Complete(Complete(buf)) ==
// Complete(buf).
func (b *Builder) Complete() (int, error) {
	msg := b.buf[:b.n]
	switch {
	case bytes.HasSuffix(msg, []byte(constants.HeaderTerminator)):
		return b.n, nil
	case bytes.HasSuffix(msg, []byte(constants.PropertyDelimiter)):
		if b.n+2 > len(b.buf) {
			return 0, errors.NewBufferTooSmall("request.Complete", "no room for terminator")
		}
		copy(b.buf[b.n:], constants.PropertyDelimiter)
		b.n += 2
		return b.n, nil
	default:
		if b.n+4 > len(b.buf) {
			return 0, errors.NewBufferTooSmall("request.Complete", "no room for terminator")
		}
		copy(b.buf[b.n:], constants.HeaderTerminator)
		b.n += 4
		return b.n, nil
	}
}

// SetBodyText appends body as the request body, inserting a Content-Length
// header if one is not already present.
func (b *Builder) SetBodyText(body string) (int, error) {
	prev := b.n
	if _, err := GetProperty("Content-Length", b.buf[:b.n]); isNotFound(err) {
		if err := b.SetProperty("Content-Length", strconv.Itoa(len(body))); err != nil {
			return 0, err
		}
	}
	if _, err := b.Complete(); err != nil {
		b.n = prev
		return 0, err
	}
	if b.n+len(body) > len(b.buf) {
		b.n = prev
		return 0, errors.NewBufferTooSmall("request.SetBodyText", "no room for body")
	}
	copy(b.buf[b.n:], body)
	b.n += len(body)
	return b.n, nil
}

// SetBodyBinary appends data as the request body after inserting a
// Content-Length header and completing the header section.
func (b *Builder) SetBodyBinary(data []byte) (int, error) {
	// Check the final size up front: once SetProperty has moved an existing
	// Content-Length line, a later failure could not restore the buffer.
	line := fmt.Sprintf("Content-Length: %d\r\n", len(data))
	need := b.n + len(line) + len(constants.PropertyDelimiter) + len(data)
	if start, end, ok := findHeaderLine(b.buf[:b.n], "Content-Length"); ok {
		need -= end - start
	}
	if need > len(b.buf) {
		return 0, errors.NewBufferTooSmall("request.SetBodyBinary", "no room for body")
	}
	if err := b.SetProperty("Content-Length", strconv.Itoa(len(data))); err != nil {
		return 0, err
	}
	if _, err := b.Complete(); err != nil {
		return 0, err
	}
	if b.n+len(data) > len(b.buf) {
		return 0, errors.NewBufferTooSmall("request.SetBodyBinary", "no room for body")
	}
	copy(b.buf[b.n:], data)
	b.n += len(data)
	return b.n, nil
}

// notFoundError is a sentinel distinguishing "no such header" from a
// malformed one; it deliberately does not use errors.Error's Kind taxonomy
// since absence is an expected outcome, not a failure condition.
type notFoundError struct{ name string }

func (e notFoundError) Error() string { return fmt.Sprintf("property %q not found", e.name) }

func isNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// GetProperty reads a header value out of an arbitrary HTTP message (request
// or response): name is matched at the start of a line (case-insensitive),
// up to the following ':'; the value runs from the first non-space byte
// after ':' to the next CRLF.
func GetProperty(name string, message []byte) (string, error) {
	_, colon, ok := findHeaderLineStart(message, name)
	if !ok {
		return "", notFoundError{name: name}
	}
	valueStart := colon + 1
	for valueStart < len(message) && message[valueStart] == ' ' {
		valueStart++
	}
	rel := bytes.Index(message[valueStart:], []byte(constants.PropertyDelimiter))
	if rel < 0 {
		return "", errors.NewMalformed("request.GetProperty", "property line missing CRLF terminator", nil)
	}
	return string(message[valueStart : valueStart+rel]), nil
}

// findHeaderLine locates the full line (including its trailing CRLF) whose
// token before ':' equals name case-insensitively. It returns the byte
// offsets [start, end) of that line within msg.
func findHeaderLine(msg []byte, name string) (start, end int, ok bool) {
	lineStart, colon, found := findHeaderLineStart(msg, name)
	if !found {
		return 0, 0, false
	}
	rel := bytes.Index(msg[colon:], []byte(constants.PropertyDelimiter))
	if rel < 0 {
		return 0, 0, false
	}
	return lineStart, colon + rel + len(constants.PropertyDelimiter), true
}

// findHeaderLineStart scans msg line by line (skipping the request/status
// line) for a header name token matching name case-insensitively, returning
// the offset of the line's first byte and the offset of its ':'.
func findHeaderLineStart(msg []byte, name string) (lineStart, colon int, ok bool) {
	// Skip the start line.
	firstCRLF := bytes.Index(msg, []byte(constants.PropertyDelimiter))
	if firstCRLF < 0 {
		return 0, 0, false
	}
	pos := firstCRLF + len(constants.PropertyDelimiter)
	for pos < len(msg) {
		lineEndRel := bytes.Index(msg[pos:], []byte(constants.PropertyDelimiter))
		var line []byte
		if lineEndRel < 0 {
			line = msg[pos:]
		} else {
			line = msg[pos : pos+lineEndRel]
		}
		if len(line) == 0 {
			return 0, 0, false // header terminator reached
		}
		colonRel := bytes.IndexByte(line, ':')
		if colonRel >= 0 && colonRel == len(name) && equalFoldASCII(line[:colonRel], name) {
			return pos, pos + colonRel, true
		}
		if lineEndRel < 0 {
			break
		}
		pos += lineEndRel + len(constants.PropertyDelimiter)
	}
	return 0, 0, false
}

func equalFoldASCII(a []byte, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
