package multipart

import (
	"fmt"
	"strings"
)

// State is a multipart parser state.
type State int

// Parser states. Body bytes are scanned speculatively: every byte that could
// begin the "\r\n--boundary" delimiter is withheld until the match either
// completes or breaks, in which case the withheld bytes become field data.
const (
	StateExpectBoundary State = iota
	StateParseHeaders
	StateWaitForReturn
	StateExpectFeed
	StateExpectDash1
	StateExpectDash2
	StateBoundaryOrData
	StateDashOrReturn
	StateExpectFeed2
	StateExpectFinalDash
	StateFinished
	StateParseError
)

var stateNames = [...]string{
	StateExpectBoundary:  "expect_boundary",
	StateParseHeaders:    "parse_headers",
	StateWaitForReturn:   "wait_for_return",
	StateExpectFeed:      "expect_feed",
	StateExpectDash1:     "expect_dash1",
	StateExpectDash2:     "expect_dash2",
	StateBoundaryOrData:  "boundary_or_data",
	StateDashOrReturn:    "dash_or_return",
	StateExpectFeed2:     "expect_feed2",
	StateExpectFinalDash: "expect_final_dash",
	StateFinished:        "finished",
	StateParseError:      "parse_error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Parser is a streaming multipart/form-data parser. Bytes are fed through
// Write in arbitrary splits; fields and file chunks are reported through the
// configured callbacks as soon as they are complete.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	opts        *options
	err         error
	boundary    []byte
	opening     []byte
	line        []byte
	value       []byte
	buf         []byte
	name        string
	filename    string
	contentType string
	parsed      int64
	size        int64
	bufN        int
	boundaryPos int
	state       State
	isFile      bool
}

// New creates a parser for the given boundary token.
func New(boundary string, opts ...Option) *Parser {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Parser{
		opts:     o,
		boundary: []byte(boundary),
		opening:  []byte("--" + boundary + "\r\n"),
		state:    StateExpectBoundary,
	}
}

// State returns the current parser state.
func (p *Parser) State() State {
	return p.state
}

// Err returns the error that moved the parser into StateParseError, if any.
func (p *Parser) Err() error {
	return p.err
}

// Parsed returns the number of bytes consumed so far.
func (p *Parser) Parsed() int64 {
	return p.parsed
}

// Write feeds body bytes to the parser.
// Once the parser has failed every subsequent call returns the same error.
func (p *Parser) Write(data []byte) (int, error) {
	for i, c := range data {
		if p.state == StateParseError {
			return i, p.err
		}
		if p.opts.contentLength >= 0 && p.parsed >= p.opts.contentLength {
			p.fail(fmt.Errorf("%w: more than %d bytes", ErrLengthMismatch, p.opts.contentLength))
			return i, p.err
		}
		p.feed(c)
		p.parsed++
	}
	if p.state == StateParseError {
		return len(data), p.err
	}
	return len(data), nil
}

// Close validates that the body ended on the closing boundary and that the
// consumed byte count matches the declared content length.
func (p *Parser) Close() error {
	switch {
	case p.state == StateParseError:
		return p.err
	case p.state != StateFinished:
		p.fail(fmt.Errorf("%w: stopped in state %s", ErrUnexpectedEOF, p.state))
		return p.err
	case p.opts.contentLength >= 0 && p.parsed != p.opts.contentLength:
		p.fail(fmt.Errorf("%w: parsed %d of %d bytes", ErrLengthMismatch, p.parsed, p.opts.contentLength))
		return p.err
	}
	p.buf = nil
	return nil
}

// feed dispatches one byte. A byte that breaks a speculative delimiter match
// is replayed from StateWaitForReturn; the replay never breaks a match itself,
// so the loop runs at most twice.
func (p *Parser) feed(c byte) {
	for p.step(c) {
	}
}

func (p *Parser) step(c byte) bool {
	switch p.state {
	case StateExpectBoundary:
		if c != p.opening[p.parsed] {
			p.fail(fmt.Errorf("%w: unexpected byte %q at offset %d", ErrMalformed, c, p.parsed))
			return false
		}
		if int(p.parsed) == len(p.opening)-1 {
			p.beginPart()
		}

	case StateParseHeaders:
		p.headerByte(c)

	case StateWaitForReturn:
		if c == '\r' {
			p.state = StateExpectFeed
		} else {
			p.writeByte(c)
		}

	case StateExpectFeed:
		if c == '\n' {
			p.state = StateExpectDash1
			return false
		}
		return p.deroute("\r")

	case StateExpectDash1:
		if c == '-' {
			p.state = StateExpectDash2
			return false
		}
		return p.deroute("\r\n")

	case StateExpectDash2:
		if c == '-' {
			p.state = StateBoundaryOrData
			p.boundaryPos = 0
			return false
		}
		return p.deroute("\r\n-")

	case StateBoundaryOrData:
		if c != p.boundary[p.boundaryPos] {
			return p.derouteDelimiter(p.boundaryPos, "")
		}
		p.boundaryPos++
		if p.boundaryPos == len(p.boundary) {
			p.state = StateDashOrReturn
		}

	case StateDashOrReturn:
		switch c {
		case '\r':
			p.state = StateExpectFeed2
		case '-':
			p.state = StateExpectFinalDash
		default:
			return p.derouteDelimiter(len(p.boundary), "")
		}

	case StateExpectFeed2:
		if c != '\n' {
			return p.derouteDelimiter(len(p.boundary), "\r")
		}
		if p.endPart() {
			p.beginPart()
		}

	case StateExpectFinalDash:
		if c != '-' {
			return p.derouteDelimiter(len(p.boundary), "-")
		}
		if p.endPart() {
			p.state = StateFinished
		}

	case StateFinished, StateParseError:
		// Epilogue bytes and bytes after a failure are absorbed.
	}
	return false
}

// deroute flushes withheld bytes as field data and asks for the current byte
// to be replayed.
func (p *Parser) deroute(withheld string) bool {
	p.state = StateWaitForReturn
	for i := 0; i < len(withheld) && p.state != StateParseError; i++ {
		p.writeByte(withheld[i])
	}
	return p.state != StateParseError
}

// derouteDelimiter flushes "\r\n--" plus the matched part of the boundary and
// any extra withheld suffix.
func (p *Parser) derouteDelimiter(matched int, suffix string) bool {
	if !p.deroute("\r\n--") {
		return false
	}
	for i := 0; i < matched && p.state != StateParseError; i++ {
		p.writeByte(p.boundary[i])
	}
	for i := 0; i < len(suffix) && p.state != StateParseError; i++ {
		p.writeByte(suffix[i])
	}
	return p.state != StateParseError
}

func (p *Parser) beginPart() {
	p.state = StateParseHeaders
	p.line = p.line[:0]
	p.name = ""
	p.filename = ""
	p.contentType = ""
	p.isFile = false
}

func (p *Parser) headerByte(c byte) {
	switch c {
	case '\r':
		return
	case '\n':
		if len(p.line) == 0 {
			p.beginBody()
			return
		}
		p.parseHeader(string(p.line))
		p.line = p.line[:0]
		return
	}
	if len(p.line) >= p.opts.maxHeaderLine {
		p.fail(fmt.Errorf("%w: header line longer than %d bytes", ErrTooLarge, p.opts.maxHeaderLine))
		return
	}
	p.line = append(p.line, c)
}

func (p *Parser) parseHeader(line string) {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)

	switch {
	case strings.EqualFold(name, "Content-Disposition"):
		_, params := parseDisposition(value)
		if v, ok := params["name"]; ok {
			p.name = v
		}
		if v, ok := params["filename"]; ok {
			p.filename = v
			p.isFile = true
		}
	case strings.EqualFold(name, "Content-Type"):
		p.contentType = value
		p.isFile = true
	}
}

func (p *Parser) beginBody() {
	p.state = StateWaitForReturn
	p.size = 0
	p.value = p.value[:0]
	if p.isFile {
		if len(p.buf) != p.opts.chunkSize {
			p.buf = make([]byte, p.opts.chunkSize)
		}
		p.bufN = 0
	}
}

func (p *Parser) writeByte(c byte) {
	p.size++
	if p.isFile {
		if p.opts.maxUploadSize > 0 && p.size > p.opts.maxUploadSize {
			p.fail(fmt.Errorf("%w: file %q exceeds %d bytes", ErrTooLarge, p.filename, p.opts.maxUploadSize))
			return
		}
		p.buf[p.bufN] = c
		p.bufN++
		if p.bufN == len(p.buf) {
			p.flush(false)
		}
		return
	}
	if len(p.value) >= p.opts.maxFieldSize {
		p.fail(fmt.Errorf("%w: field %q exceeds %d bytes", ErrTooLarge, p.name, p.opts.maxFieldSize))
		return
	}
	p.value = append(p.value, c)
}

func (p *Parser) flush(last bool) {
	if p.opts.onUpload != nil {
		offset := p.size - int64(p.bufN)
		if err := p.opts.onUpload(p.filename, offset, p.buf[:p.bufN], last); err != nil {
			p.fail(fmt.Errorf("%w: %w", ErrSink, err))
			return
		}
	}
	p.bufN = 0
}

// endPart commits the current field once its closing delimiter is confirmed.
func (p *Parser) endPart() bool {
	if !p.isFile {
		if p.opts.onField != nil {
			p.opts.onField(p.name, string(p.value))
		}
		return true
	}

	// Empty file parts (a file input left blank) produce nothing.
	if p.size == 0 {
		return true
	}
	p.flush(true)
	if p.state == StateParseError {
		return false
	}
	if p.opts.onFile != nil {
		p.opts.onFile(p.name, p.filename, p.contentType, p.size)
	}
	return true
}

func (p *Parser) fail(err error) {
	p.err = err
	p.state = StateParseError
	p.buf = nil
	p.value = nil
	p.line = nil
}
