package http

import (
	"fmt"
	"strings"
)

// Field is one header field.
type Field struct {
	Key   string
	Value string
}

// Header is a parsed request header.
type Header struct {
	Method string
	Target string
	Proto  string
	Fields []Field
}

// Get looks up a field value by case-insensitive key.
func (h Header) Get(key string) (string, bool) {
	for _, f := range h.Fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value, true
		}
	}
	return "", false
}

// parser incrementally consumes request bytes into headers. Data may arrive
// split at arbitrary positions; pipelined requests in one chunk each produce
// their own header.
type parser struct {
	line  []byte
	lines []string
	hasCR bool
}

// consume feeds bytes into the parser, returning any headers completed by
// this chunk.
func (p *parser) consume(data []byte) ([]Header, error) {
	var done []Header

	for _, b := range data {
		switch b {
		case '\r':
			p.hasCR = true
		case '\n':
			// CRLF is the required newline; a bare LF is technically a
			// malformed request, but we accept it the same way.
			p.hasCR = false
			if len(p.line) == 0 {
				// Empty line terminates the header.
				header, err := parseHeader(p.lines)
				if err != nil {
					return done, err
				}
				p.lines = nil
				done = append(done, header)
				continue
			}
			p.lines = append(p.lines, string(p.line))
			p.line = p.line[:0]
		default:
			// A CR not followed by LF counts as a space.
			if p.hasCR {
				p.line = append(p.line, ' ')
				p.hasCR = false
			}
			p.line = append(p.line, b)
		}
	}

	return done, nil
}

func parseHeader(lines []string) (Header, error) {
	if len(lines) == 0 {
		return Header{}, fmt.Errorf("empty request header")
	}

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) != 3 {
		return Header{}, fmt.Errorf("malformed request line %q", lines[0])
	}
	header := Header{
		Method: parts[0],
		Target: parts[1],
		Proto:  parts[2],
	}

	for _, line := range lines[1:] {
		key, value, found := strings.Cut(line, ":")
		if !found {
			return Header{}, fmt.Errorf("malformed field line %q", line)
		}
		header.Fields = append(header.Fields, Field{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	return header, nil
}
