//
// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/ooni/probe-engine/blob/v0.23.0/netx/resolver/encoder.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/query.go
//

package dnsresponse

import (
	"fmt"

	"github.com/miekg/dns"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/net/idna"
)

const (
	// QueryFlagBlockLengthPadding enables using RFC8467 block length padding.
	QueryFlagBlockLengthPadding = 1 << iota

	// QueryFlagDNSSec enables requesting for DNSSEC signatures.
	QueryFlagDNSSec
)

const (
	// QueryMaxResponseSizeUDP is the maximum response size when using UDP
	// and is consistent with what the standard library uses.
	QueryMaxResponseSizeUDP = 1232

	// QueryMaxResponseSizeTCP is the maximum response size when using TCP
	// and is consistent with what the standard library uses.
	QueryMaxResponseSizeTCP = 4096
)

// Query is a DNS query.
//
// A [*Response] uses the query ID, type and question section to validate
// responses. Transports use [*Query.NewMsg] to marshal the query itself.
//
// Construct using [NewQuery] or set the MANDATORY fields.
type Query struct {
	// Flags OPTIONALLY modify the query flags.
	//
	// Use [QueryFlagBlockLengthPadding] and [QueryFlagDNSSec].
	Flags uint16

	// ID is the OPTIONAL query ID.
	ID uint16

	// MaxSize is the OPTIONAL maximum response size
	// to include in the query using EDNS(0).
	//
	// Use [QueryMaxResponseSizeUDP] or [QueryMaxResponseSizeTCP].
	MaxSize uint16

	// Name is the MANDATORY domain name to query.
	Name string

	// Type is the query type.
	Type uint16
}

// NewQuery constructs a new [*Query] with safe defaults.
//
// By default, the query uses a randomized ID, requests recursion, and uses
// [QueryMaxResponseSizeUDP] as the EDNS(0) maximum response size.
func NewQuery(name string, qtype uint16) *Query {
	return &Query{
		Name:    name,
		Type:    qtype,
		Flags:   0,
		ID:      dns.Id(),
		MaxSize: QueryMaxResponseSizeUDP,
	}
}

// Clone returns a deep copy of the query.
func (q *Query) Clone() *Query {
	return &Query{
		Name:    q.Name,
		Type:    q.Type,
		Flags:   q.Flags,
		ID:      q.ID,
		MaxSize: q.MaxSize,
	}
}

// Qtype returns the query type.
func (q *Query) Qtype() uint16 {
	return q.Type
}

// fqdn returns the IDNA-encoded fully qualified query name.
func (q *Query) fqdn() (string, error) {
	punyName, err := idna.Lookup.ToASCII(q.Name)
	if err != nil {
		return "", err
	}
	return dns.Fqdn(punyName), nil
}

// Question returns the wire-format question section, which contains
// the uncompressed QNAME followed by QTYPE and QCLASS (always IN).
//
// The returned error wraps [ErrInvalidQuery] if the name is not valid.
func (q *Query) Question() ([]byte, error) {
	punyName, err := q.fqdn()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	qname, ok := DomainFromDot(punyName)
	if !ok {
		return nil, fmt.Errorf("%w: cannot encode %q", ErrInvalidQuery, punyName)
	}
	b := cryptobyte.NewFixedBuilder(make([]byte, 0, len(qname)+qtypeQclassSize))
	b.AddBytes(qname)
	b.AddUint16(q.Type)
	b.AddUint16(dns.ClassINET)
	return b.Bytes()
}

// QuestionSize returns the size of the question section.
func (q *Query) QuestionSize() (int, error) {
	question, err := q.Question()
	if err != nil {
		return 0, err
	}
	return len(question), nil
}

// NewMsg creates a new [*dns.Msg] from the [*Query].
func (q *Query) NewMsg() (*dns.Msg, error) {
	// IDNA encode and fully qualify the domain name.
	punyName, err := q.fqdn()
	if err != nil {
		return nil, err
	}

	// Create the query message.
	question := dns.Question{
		Name:   punyName,
		Qtype:  q.Type,
		Qclass: dns.ClassINET,
	}
	msg := new(dns.Msg)
	msg.Id = q.ID
	msg.RecursionDesired = true
	msg.Question = make([]dns.Question, 1)
	msg.Question[0] = question

	// Set the EDNS(0) query options
	msg.SetEdns0(q.MaxSize, q.Flags&QueryFlagDNSSec != 0)

	// Clients SHOULD pad queries to the closest multiple of
	// 128 octets RFC8467#section-4.1. We inflate the query
	// length by the size of the option (i.e. 4 octets). The
	// cast to uint is necessary to make the modulus operation
	// work as intended when the desiredBlockSize is smaller
	// than (query.Len()+4) ¯\_(ツ)_/¯.
	if q.Flags&QueryFlagBlockLengthPadding != 0 {
		const desiredSize = 128
		remainder := (desiredSize - uint16(msg.Len()+4)) % desiredSize
		opt := new(dns.EDNS0_PADDING)
		opt.Padding = make([]byte, remainder)
		msg.IsEdns0().Option = append(msg.IsEdns0().Option, opt)
	}

	return msg, nil
}
