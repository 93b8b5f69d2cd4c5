//
// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/ooni/probe-engine/blob/v0.23.0/netx/resolver/decoder.go
// Adapted from: https://github.com/golang/go/blob/go1.21.10/src/net/dnsclient_unix.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/response.go
//

package dnsresponse

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/miekg/dns"
)

// These error messages use the same suffixes used by the Go standard library.
var (
	// ErrNoName indicates that the server response code is NXDOMAIN.
	ErrNoName = errors.New("no such host")

	// ErrServerMisbehaving indicates that the server response code is
	// neither 0, nor NXDOMAIN, nor SERVFAIL.
	ErrServerMisbehaving = errors.New("server misbehaving")

	// ErrServerTemporarilyMisbehaving indicates that the server answer is SERVFAIL.
	//
	// The error message is same as [ErrServerMisbehaving] for compatibility with the
	// Go standard library, which assigns the same error string to both errors.
	ErrServerTemporarilyMisbehaving = errors.New("server misbehaving")

	// ErrNoData indicates that there is no pertinent answer in the response.
	ErrNoData = errors.New("no answer from DNS server")
)

// ResponseErrorFromRcode maps the RCODE of a parsed response to an
// error using a suffix compatible with the errors returned by [*net.Resolver].
//
// If the RCODE is zero and the response is not a lame referral, this
// function returns nil. It panics if the response is not parsed.
func ResponseErrorFromRcode(r *Response) error {
	rcode, flags := r.Rcode(), r.Flags()

	// 1. handle NXDOMAIN case by mapping it to EAI_NONAME
	if rcode == dns.RcodeNameError {
		return ErrNoName
	}

	// 2. handle the case of lame referral by mapping it to EAI_NODATA
	if rcode == dns.RcodeSuccess &&
		flags&FlagAuthoritative == 0 &&
		flags&FlagRecursionAvailable == 0 &&
		r.AnswerCount() == 0 {
		return ErrNoData
	}

	// 3. handle any other error by mapping to EAI_FAIL
	if rcode != dns.RcodeSuccess {
		if rcode == dns.RcodeServerFailure {
			return ErrServerTemporarilyMisbehaving
		}
		return ErrServerMisbehaving
	}
	return nil
}

// Sections contains the records of a parsed response.
type Sections struct {
	Answers    []ResourceRecord
	Authority  []ResourceRecord
	Additional []ResourceRecord
}

// ReadSections reads all the records of a parsed response using a copy
// of its parser. The records RDATA are views into the response buffer.
func ReadSections(r *Response) (*Sections, error) {
	parser := r.Parser()
	sections := &Sections{}
	for _, section := range []struct {
		records *[]ResourceRecord
		count   int
	}{
		{&sections.Answers, r.AnswerCount()},
		{&sections.Authority, r.AuthorityCount()},
		{&sections.Additional, r.AdditionalAnswerCount()},
	} {
		// The counts are attacker controlled, so we do not preallocate.
		for idx := 0; idx < section.count; idx++ {
			var rr ResourceRecord
			if !parser.ReadRecord(&rr) {
				return nil, fmt.Errorf("%w: cannot read record #%d", ErrTruncatedResponse, idx)
			}
			*section.records = append(*section.records, rr)
		}
	}
	return sections, nil
}

// cnameTarget decodes the possibly compressed target of a CNAME record.
//
// The in-place part of the name must span the whole RDATA, otherwise
// we would read the target from the bytes following the record.
func cnameTarget(parser *RecordParser, rr ResourceRecord) (string, bool) {
	var (
		target   string
		consumed int
	)
	if off, ok := rr.RDataOffset(); ok {
		consumed = parser.ReadName(off, &target)
	} else {
		owned := NewRecordParser(rr.RData(), 0, nil)
		consumed = owned.ReadName(0, &target)
	}
	if consumed <= 0 || consumed != len(rr.RData()) {
		return "", false
	}
	return target, true
}

// ExtractValidAnswers returns the answers pertaining to the question of
// a parsed response, in the order in which they appear.
//
// Before invoking this function, make sure the response does not contain
// errors using [ResponseErrorFromRcode]. If the response does not contain
// any valid record, this function returns [ErrNoData].
func ExtractValidAnswers(r *Response, answers []ResourceRecord) ([]ResourceRecord, error) {
	qname := r.DottedName()
	parser := r.Parser()

	// 1. Build CNAME chain starting from the query name.
	// RFC 1034 section 4.3.1 says that "the recursive response to a query
	// will be... The answer to the query, possibly preface by one or more
	// CNAME RRs that specify aliases encountered on the way to an answer."
	//
	// We need to validate that CNAMEs form a proper chain and track all
	// valid names in that chain, accounting for non canonical names.
	validNames := map[string]bool{dns.CanonicalName(qname): true}
	currentName := qname
	for _, answer := range answers {
		if answer.Type != dns.TypeCNAME || answer.Class != dns.ClassINET {
			continue
		}
		if !responseEqualASCIIName(dns.Fqdn(currentName), dns.Fqdn(answer.Name)) {
			continue
		}
		target, ok := cnameTarget(&parser, answer)
		if !ok {
			continue
		}
		currentName = target
		validNames[dns.CanonicalName(currentName)] = true
	}

	// 2. Build list of valid answers: CNAMEs that are part of the chain,
	// plus any other RRs that match a name in the chain. There may be
	// several RR types for a given query so we do not check the type.
	valid := []ResourceRecord{}
	for _, answer := range answers {
		if !validNames[dns.CanonicalName(answer.Name)] || answer.Class != dns.ClassINET {
			continue
		}
		valid = append(valid, answer)
	}

	// 3. Handle the case of no valid answers
	if len(valid) < 1 {
		return nil, ErrNoData
	}
	return valid, nil
}

// SPDX-License-Identifier: BSD-3-Clause
//
// Borrowed from Go src/net package.
func responseEqualASCIIName(x, y string) bool {
	if len(x) != len(y) {
		return false
	}
	for i := 0; i < len(x); i++ {
		a := x[i]
		b := y[i]
		if 'A' <= a && a <= 'Z' {
			a += 0x20
		}
		if 'A' <= b && b <= 'Z' {
			b += 0x20
		}
		if a != b {
			return false
		}
	}
	return true
}

// Answers contains the valid answers of a response.
//
// Construct a new instance using [ParseAnswers].
type Answers struct {
	// Response is the parsed response.
	Response *Response

	// Sections contains all the records in the response.
	Sections *Sections

	// ValidRRs contains the valid answers for the question.
	ValidRRs []ResourceRecord
}

// ParseAnswers returns the [*Answers] of a parsed response containing a
// single question or an error if the response does not contain valid answers.
func ParseAnswers(r *Response) (*Answers, error) {
	if _, err := r.readQuestion(); err != nil {
		return nil, err
	}

	if err := ResponseErrorFromRcode(r); err != nil {
		return nil, err
	}

	sections, err := ReadSections(r)
	if err != nil {
		return nil, err
	}

	rrs, err := ExtractValidAnswers(r, sections.Answers)
	if err != nil {
		return nil, err
	}

	ap := &Answers{
		Response: r,
		Sections: sections,
		ValidRRs: rrs,
	}
	return ap, nil
}

// RecordsA returns all the A records in the answers.
func (a *Answers) RecordsA() ([]string, error) {
	out := make([]string, 0, len(a.ValidRRs))
	for _, rr := range a.ValidRRs {
		if rr.Type == dns.TypeA && len(rr.RData()) == 4 {
			out = append(out, netip.AddrFrom4([4]byte(rr.RData())).String())
		}
	}
	if len(out) < 1 {
		return nil, ErrNoData
	}
	return out, nil
}

// RecordsAAAA returns all the AAAA records in the answers.
func (a *Answers) RecordsAAAA() ([]string, error) {
	out := make([]string, 0, len(a.ValidRRs))
	for _, rr := range a.ValidRRs {
		if rr.Type == dns.TypeAAAA && len(rr.RData()) == 16 {
			out = append(out, netip.AddrFrom16([16]byte(rr.RData())).String())
		}
	}
	if len(out) < 1 {
		return nil, ErrNoData
	}
	return out, nil
}

// RecordsCNAME returns the targets of all the CNAME records in the answers.
func (a *Answers) RecordsCNAME() ([]string, error) {
	parser := a.Response.Parser()
	out := make([]string, 0, len(a.ValidRRs))
	for _, rr := range a.ValidRRs {
		if rr.Type != dns.TypeCNAME {
			continue
		}
		if target, ok := cnameTarget(&parser, rr); ok {
			out = append(out, target)
		}
	}
	if len(out) < 1 {
		return nil, ErrNoData
	}
	return out, nil
}
