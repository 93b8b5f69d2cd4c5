// SPDX-License-Identifier: GPL-3.0-or-later

package dnsresponse

import (
	"errors"
	"fmt"
	"math"

	"github.com/bassosimone/runtimex"
	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/crypto/cryptobyte"
)

// Errors emitted by [BuildResponse].
var (
	// ErrCannotBuildResponse wraps any error occurring while building a response.
	ErrCannotBuildResponse = errors.New("cannot build DNS response")

	// ErrInvalidRcode means that the RCODE does not fit into four bits.
	ErrInvalidRcode = errors.New("invalid RCODE")

	// ErrRecordNotOwned means that a record RDATA is a view into a parsed
	// message rather than storage owned by the record.
	ErrRecordNotOwned = errors.New("record does not own its RDATA")

	// ErrInvalidRDataSize means that the RDATA size is not valid for the record type.
	ErrInvalidRDataSize = errors.New("invalid RDATA size")

	// ErrMismatchedAnswerType means that an answer type is neither the
	// query type nor CNAME.
	ErrMismatchedAnswerType = errors.New("mismatched answer type")

	// ErrInvalidName means that a record name cannot be encoded.
	ErrInvalidName = errors.New("invalid record name")

	// ErrTooManyRecords means that a section contains more than 65535 records.
	ErrTooManyRecords = errors.New("too many records")
)

// ResponseConfig contains the content of a response built by [BuildResponse].
type ResponseConfig struct {
	// ID is the OPTIONAL message ID, which MUST match the query ID
	// when a query is present.
	ID uint16

	// Authoritative OPTIONALLY sets the AA bit.
	Authoritative bool

	// Answers contains the OPTIONAL answer records.
	Answers []ResourceRecord

	// Authority contains the OPTIONAL authority records.
	Authority []ResourceRecord

	// Additional contains the OPTIONAL additional records.
	Additional []ResourceRecord

	// Query is the OPTIONAL query we are responding to. When set, the
	// response contains its question and answers must either have the
	// query type or be CNAME records.
	Query *Query

	// Rcode is the OPTIONAL response code, which must fit into four bits.
	Rcode uint8
}

// BuildResponse serializes a response containing the given records and
// parses it back, so the returned [*Response] is already positioned
// at the answer section. On failure, the error wraps [ErrCannotBuildResponse].
//
// All records MUST own their RDATA (see [NewResourceRecord]) and have an
// RDATA size accepted by [RDataHasValidSize]. Names are not compressed.
// Passing a record read by a [RecordParser] is a programming error that we
// report as [ErrRecordNotOwned] rather than a panic. Use [ResourceRecord.Owned]
// to obtain a record that can be serialized.
func BuildResponse(config *ResponseConfig, options ...Option) (*Response, error) {
	r := newResponse(nil, options)
	buf, err := config.pack(r.logger)
	if err == nil {
		r.buf = buf
		if config.Query != nil {
			err = r.InitParse(len(buf), config.Query)
		} else {
			err = r.InitParseWithoutQuery(len(buf))
		}
	}
	if err != nil {
		r.logger.Debug("dnsresponse: cannot build response", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrCannotBuildResponse, err)
	}
	return r, nil
}

func (config *ResponseConfig) header() (header, error) {
	h := header{ID: config.ID, Flags: FlagResponse}
	if config.Query != nil {
		// we only support responding to queries with a single question
		if config.Query.ID != config.ID {
			return h, fmt.Errorf("%w: query ID %d differs from response ID %d",
				ErrInvalidQuery, config.Query.ID, config.ID)
		}
		h.Qdcount = 1
	}
	if config.Authoritative {
		h.Flags |= FlagAuthoritative
	}
	if config.Rcode&^rcodeMask != 0 {
		return h, fmt.Errorf("%w: %d", ErrInvalidRcode, config.Rcode)
	}
	h.Flags |= uint16(config.Rcode)

	for _, count := range []struct {
		field   *uint16
		records []ResourceRecord
	}{
		{&h.Ancount, config.Answers},
		{&h.Nscount, config.Authority},
		{&h.Arcount, config.Additional},
	} {
		if len(count.records) > math.MaxUint16 {
			return h, fmt.Errorf("%w: %d", ErrTooManyRecords, len(count.records))
		}
		*count.field = uint16(len(count.records))
	}
	return h, nil
}

func (config *ResponseConfig) pack(logger *zap.Logger) ([]byte, error) {
	h, err := config.header()
	if err != nil {
		return nil, err
	}

	var question []byte
	if config.Query != nil {
		if question, err = config.Query.Question(); err != nil {
			return nil, err
		}
	}

	// compute the exact size first, so we allocate once
	size := HeaderSize + len(question)
	for _, records := range [][]ResourceRecord{config.Answers, config.Authority, config.Additional} {
		for _, rr := range records {
			size += rr.EncodedSize()
		}
	}

	b := cryptobyte.NewFixedBuilder(make([]byte, 0, size))
	h.pack(b)
	b.AddBytes(question)
	for _, rr := range config.Answers {
		if err := writeAnswer(b, rr, config.Query); err != nil {
			return nil, err
		}
	}
	for _, records := range [][]ResourceRecord{config.Authority, config.Additional} {
		for _, rr := range records {
			if err := writeRecord(b, rr); err != nil {
				return nil, err
			}
		}
	}

	// writing more than size bytes means EncodedSize is broken
	buf := runtimex.PanicOnError1(b.Bytes())

	if pending := size - len(buf); pending > 0 {
		logger.Warn("dnsresponse: zero-filling unwritten response bytes",
			zap.Int("size", size),
			zap.Int("pending", pending),
		)
		buf = append(buf, make([]byte, pending)...)
	}
	return buf, nil
}

func writeAnswer(b *cryptobyte.Builder, rr ResourceRecord, query *Query) error {
	if query != nil && rr.Type != query.Qtype() && rr.Type != dns.TypeCNAME {
		return fmt.Errorf("%w: %s for a %s query", ErrMismatchedAnswerType,
			dns.Type(rr.Type), dns.Type(query.Qtype()))
	}
	return writeRecord(b, rr)
}

func writeRecord(b *cryptobyte.Builder, rr ResourceRecord) error {
	if !rr.serializable() {
		return fmt.Errorf("%w: %s", ErrRecordNotOwned, rr.Name)
	}
	if !RDataHasValidSize(rr.rdata, rr.Type) || len(rr.rdata) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes for %s", ErrInvalidRDataSize, len(rr.rdata), dns.Type(rr.Type))
	}
	name, ok := DomainFromDot(rr.Name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidName, rr.Name)
	}
	b.AddBytes(name)
	b.AddUint16(rr.Type)
	b.AddUint16(rr.Class)
	b.AddUint32(rr.TTL)
	b.AddUint16(uint16(len(rr.rdata)))
	b.AddBytes(rr.rdata)
	return nil
}
