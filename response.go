// SPDX-License-Identifier: GPL-3.0-or-later

package dnsresponse

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bassosimone/runtimex"
	"go.uber.org/zap"
	"golang.org/x/crypto/cryptobyte"
)

const (
	// HeaderSize is the size of the DNS message header.
	HeaderSize = 12

	// MaxUDPSize is the maximum size of a DNS message received over UDP.
	MaxUDPSize = 4096
)

const (
	// FlagResponse is the QR bit of the header flags.
	FlagResponse = 1 << 15

	// FlagAuthoritative is the AA bit of the header flags.
	FlagAuthoritative = 1 << 10

	// FlagRecursionAvailable is the RA bit of the header flags.
	FlagRecursionAvailable = 1 << 7

	// rcodeMask selects the RCODE bits of the header flags.
	rcodeMask = 0xf
)

// Errors emitted when parsing responses.
var (
	// ErrInvalidQuery means that the query does not contain a valid question.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidResponse means that the response is not a response message
	// or does not contain a single question matching the query.
	ErrInvalidResponse = errors.New("invalid DNS response")

	// ErrTruncatedResponse means that the response is too short.
	ErrTruncatedResponse = errors.New("truncated DNS response")

	// ErrNotParsed means that the response has not been successfully parsed.
	ErrNotParsed = errors.New("DNS response not parsed")
)

// Option configures a [*Response].
type Option func(r *Response)

// WithLogger sets the logger used to report malformed input.
//
// By default we use [zap.NewNop].
func WithLogger(logger *zap.Logger) Option {
	return func(r *Response) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Response is a DNS response message.
//
// Construct using [NewResponse], [NewResponseOfSize], [NewResponseFromBytes]
// or [BuildResponse]. The header accessors and [*Response.Parser] panic
// unless the response has been successfully parsed.
//
// A [*Response] is not safe for concurrent mutation. Copies of the parser
// returned by [*Response.Parser] may be used concurrently for reading.
type Response struct {
	// buf is the owned message buffer.
	buf []byte

	// parser is valid once parsing succeeded and points to the answers.
	parser RecordParser

	// idAvailable is true once buf contained enough bytes for the ID.
	idAvailable bool

	logger *zap.Logger
}

func newResponse(buf []byte, options []Option) *Response {
	r := &Response{buf: buf, logger: zap.NewNop()}
	for _, option := range options {
		option(r)
	}
	return r
}

// NewResponse returns a [*Response] whose buffer can receive a UDP
// message. The buffer is one byte larger than [MaxUDPSize] so that
// transports can detect oversized datagrams.
//
// Fill the buffer returned by [*Response.Buffer] and then call either
// [*Response.InitParse] or [*Response.InitParseWithoutQuery].
func NewResponse(options ...Option) *Response {
	return NewResponseOfSize(MaxUDPSize+1, options...)
}

// NewResponseOfSize is like [NewResponse] but uses a buffer of exactly size bytes.
func NewResponseOfSize(size int, options ...Option) *Response {
	return newResponse(make([]byte, size), options)
}

// NewResponseFromBytes returns a [*Response] owning a copy of data whose
// parser is positioned at answerOffset. We do not validate the header,
// hence the caller MUST know where the answer section begins.
func NewResponseFromBytes(data []byte, answerOffset int, options ...Option) *Response {
	r := newResponse(bytes.Clone(data), options)
	if r.buf == nil {
		r.buf = []byte{}
	}
	r.parser = NewRecordParser(r.buf, answerOffset, r.logger)
	r.idAvailable = len(r.buf) >= HeaderSize
	return r
}

// header is the DNS message header.
type header struct {
	ID      uint16
	Flags   uint16
	Qdcount uint16
	Ancount uint16
	Nscount uint16
	Arcount uint16
}

func (h *header) unpack(s *cryptobyte.String) bool {
	return s.ReadUint16(&h.ID) &&
		s.ReadUint16(&h.Flags) &&
		s.ReadUint16(&h.Qdcount) &&
		s.ReadUint16(&h.Ancount) &&
		s.ReadUint16(&h.Nscount) &&
		s.ReadUint16(&h.Arcount)
}

func (h *header) pack(b *cryptobyte.Builder) {
	b.AddUint16(h.ID)
	b.AddUint16(h.Flags)
	b.AddUint16(h.Qdcount)
	b.AddUint16(h.Ancount)
	b.AddUint16(h.Nscount)
	b.AddUint16(h.Arcount)
}

// InitParse validates the first nbytes of the buffer as a response to
// query and, on success, positions the parser at the answer section.
//
// The response must have the QR bit set, the same ID of the query and
// a single question byte-for-byte equal to the query question.
func (r *Response) InitParse(nbytes int, query *Query) error {
	r.parser = RecordParser{}
	question, err := query.Question()
	if err != nil {
		return err
	}

	// The response includes the question, so it must be at least that large.
	if nbytes < HeaderSize+len(question) {
		return fmt.Errorf("%w: %d bytes", ErrTruncatedResponse, nbytes)
	}
	if nbytes > len(r.buf) {
		return fmt.Errorf("%w: %d bytes exceed the %d bytes buffer", ErrInvalidResponse, nbytes, len(r.buf))
	}
	r.idAvailable = true

	var h header
	s := cryptobyte.String(r.buf[:nbytes])
	h.unpack(&s)

	if h.ID != query.ID {
		return fmt.Errorf("%w: expected ID %d, got %d", ErrInvalidResponse, query.ID, h.ID)
	}
	if h.Flags&FlagResponse == 0 {
		return fmt.Errorf("%w: not a response", ErrInvalidResponse)
	}
	if h.Qdcount != 1 {
		return fmt.Errorf("%w: expected one question, got %d", ErrInvalidResponse, h.Qdcount)
	}
	if !bytes.Equal(question, r.buf[HeaderSize:HeaderSize+len(question)]) {
		return fmt.Errorf("%w: question mismatch", ErrInvalidResponse)
	}

	r.parser = NewRecordParser(r.buf[:nbytes], HeaderSize+len(question), r.logger)
	return nil
}

// InitParseWithoutQuery is like [*Response.InitParse] for responses
// without an associated query. We skip over all the questions.
func (r *Response) InitParseWithoutQuery(nbytes int) error {
	r.parser = RecordParser{}
	if nbytes < HeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrTruncatedResponse, nbytes)
	}
	if nbytes > len(r.buf) {
		return fmt.Errorf("%w: %d bytes exceed the %d bytes buffer", ErrInvalidResponse, nbytes, len(r.buf))
	}
	r.idAvailable = true

	var h header
	s := cryptobyte.String(r.buf[:nbytes])
	h.unpack(&s)

	if h.Flags&FlagResponse == 0 {
		return fmt.Errorf("%w: not a response", ErrInvalidResponse)
	}

	parser := NewRecordParser(r.buf[:nbytes], HeaderSize, r.logger)
	for idx := 0; idx < int(h.Qdcount); idx++ {
		if !parser.SkipQuestion() {
			return fmt.Errorf("%w: cannot skip question #%d", ErrInvalidResponse, idx)
		}
	}
	r.parser = parser
	return nil
}

// IsValid returns whether the response has been successfully parsed.
func (r *Response) IsValid() bool {
	return r.parser.IsValid()
}

// ID returns the message ID once the buffer contains enough bytes.
func (r *Response) ID() (uint16, bool) {
	if !r.idAvailable {
		return 0, false
	}
	return uint16(r.buf[0])<<8 | uint16(r.buf[1]), true
}

// Buffer returns the whole underlying buffer, which a transport may fill
// before calling [*Response.InitParse].
func (r *Response) Buffer() []byte {
	return r.buf
}

// Size returns the size of the underlying buffer.
func (r *Response) Size() int {
	return len(r.buf)
}

// Bytes returns the parsed message bytes or nil if the response
// has not been successfully parsed.
func (r *Response) Bytes() []byte {
	return r.parser.buf
}

func (r *Response) checkParsed() error {
	if !r.parser.IsValid() {
		return ErrNotParsed
	}
	return nil
}

func (r *Response) readHeader() (header, error) {
	var h header
	if err := r.checkParsed(); err != nil {
		return h, err
	}
	s := cryptobyte.String(r.parser.buf)
	if !h.unpack(&s) {
		return h, fmt.Errorf("%w: no header", ErrTruncatedResponse)
	}
	return h, nil
}

func (r *Response) header() header {
	return runtimex.PanicOnError1(r.readHeader())
}

// Flags returns the header flags without the RCODE.
func (r *Response) Flags() uint16 {
	return r.header().Flags &^ rcodeMask
}

// Rcode returns the RCODE.
func (r *Response) Rcode() uint8 {
	return uint8(r.header().Flags & rcodeMask)
}

// AnswerCount returns the number of records in the answer section.
func (r *Response) AnswerCount() int {
	return int(r.header().Ancount)
}

// AuthorityCount returns the number of records in the authority section.
func (r *Response) AuthorityCount() int {
	return int(r.header().Nscount)
}

// AdditionalAnswerCount returns the number of records in the additional section.
func (r *Response) AdditionalAnswerCount() int {
	return int(r.header().Arcount)
}

// questionView is the single question of a parsed response.
type questionView struct {
	qname []byte
	qtype uint16
}

// readQuestion relies on the message layout HEADER QNAME QTYPE QCLASS ANSWER
// and on our own parser always pointing at ANSWER.
func (r *Response) readQuestion() (questionView, error) {
	h, err := r.readHeader()
	if err != nil {
		return questionView{}, err
	}
	if h.Qdcount != 1 {
		return questionView{}, fmt.Errorf("%w: expected one question, got %d", ErrInvalidResponse, h.Qdcount)
	}
	end := r.parser.Offset() - qtypeQclassSize
	if end <= HeaderSize {
		return questionView{}, fmt.Errorf("%w: no question", ErrTruncatedResponse)
	}
	qv := questionView{qname: r.parser.buf[HeaderSize:end]}
	s := cryptobyte.String(r.parser.buf[end:])
	s.ReadUint16(&qv.qtype)
	return qv, nil
}

// Qname returns the wire-format name of the single question.
func (r *Response) Qname() []byte {
	return runtimex.PanicOnError1(r.readQuestion()).qname
}

// Qtype returns the type of the single question.
func (r *Response) Qtype() uint16 {
	return runtimex.PanicOnError1(r.readQuestion()).qtype
}

// DottedName returns the name of the single question in dotted form
// or an empty string if the name cannot be converted.
func (r *Response) DottedName() string {
	name, _ := DomainToString(r.Qname())
	return name
}

// Parser returns a copy of the parser positioned at the answer section.
//
// Reading records from the copy does not affect the response, so it is
// possible to iterate over the records several times.
func (r *Response) Parser() RecordParser {
	return runtimex.PanicOnError1(r.parser, r.checkParsed())
}
