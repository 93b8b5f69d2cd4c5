// SPDX-License-Identifier: GPL-3.0-or-later

package dnsresponse

import (
	"bytes"

	"github.com/miekg/dns"
)

// TypeExperimentalIntegrity is the private-use RR type carrying an
// integrity blob: a 16-bit nonce length, the nonce, and a SHA-256 digest.
const TypeExperimentalIntegrity uint16 = 65521

// rrFixedSize is the size of TYPE, CLASS, TTL and RDLENGTH.
const rrFixedSize = 3*2 + 4

// ResourceRecord is a DNS resource record.
//
// A record either owns its RDATA, when constructed using [NewResourceRecord]
// or [*ResourceRecord.SetOwnedRData], or it is a view into the buffer read
// by a [RecordParser]. Only records owning their RDATA (or having no RDATA
// at all) can be serialized by [BuildResponse].
type ResourceRecord struct {
	// Name is the dotted domain name (e.g., "www.example.com").
	Name string

	// Type is the RR type (e.g., [dns.TypeA]).
	Type uint16

	// Class is the RR class (e.g., [dns.ClassINET]).
	Class uint16

	// TTL is the time to live in seconds.
	TTL uint32

	// rdata is either owned storage or a view into a parser buffer.
	rdata []byte

	// owned is true when rdata is non-empty storage owned by the record.
	owned bool

	// fromWire is true when rdata is a view and rdataOffset is meaningful.
	fromWire bool

	// rdataOffset is the offset of rdata inside the parser buffer.
	rdataOffset int
}

// NewResourceRecord creates a [ResourceRecord] owning a copy of rdata.
func NewResourceRecord(name string, rrtype, class uint16, ttl uint32, rdata []byte) ResourceRecord {
	rr := ResourceRecord{
		Name:  name,
		Type:  rrtype,
		Class: class,
		TTL:   ttl,
	}
	rr.SetOwnedRData(rdata)
	return rr
}

// SetOwnedRData replaces the RDATA with an owned copy of data.
func (rr *ResourceRecord) SetOwnedRData(data []byte) {
	rr.fromWire = false
	rr.rdataOffset = 0
	if len(data) <= 0 {
		rr.rdata = nil
		rr.owned = false
		return
	}
	rr.rdata = bytes.Clone(data)
	rr.owned = true
}

// RData returns the record RDATA. The caller MUST NOT modify it.
func (rr ResourceRecord) RData() []byte {
	return rr.rdata
}

// OwnsRData returns whether the record owns non-empty RDATA storage.
func (rr ResourceRecord) OwnsRData() bool {
	return rr.owned
}

// RDataOffset returns the offset of the RDATA inside the buffer that
// the record was read from. The boolean is false for records that were
// not read by a [RecordParser] or that have since taken ownership.
func (rr ResourceRecord) RDataOffset() (int, bool) {
	return rr.rdataOffset, rr.fromWire
}

// Owned returns a copy of the record that owns its RDATA.
func (rr ResourceRecord) Owned() ResourceRecord {
	rr.SetOwnedRData(rr.rdata)
	return rr
}

// Equal returns whether two records have the same name, type, class, TTL
// and RDATA bytes, regardless of RDATA ownership.
func (rr ResourceRecord) Equal(other ResourceRecord) bool {
	return rr.Name == other.Name &&
		rr.Type == other.Type &&
		rr.Class == other.Class &&
		rr.TTL == other.TTL &&
		bytes.Equal(rr.rdata, other.rdata)
}

// serializable returns whether the RDATA is owned or empty.
func (rr ResourceRecord) serializable() bool {
	return rr.owned || len(rr.rdata) <= 0
}

// EncodedSize returns the number of bytes the record occupies on the
// wire when its name is written without compression.
func (rr ResourceRecord) EncodedSize() int {
	// "example.com." encodes as 7example3com0 (one more byte than the
	// dotted form) while "example.com" needs one more byte for the root.
	size := len(rr.Name) + 2
	if dns.IsFqdn(rr.Name) {
		size = len(rr.Name) + 1
	}
	return size + rrFixedSize + len(rr.rdata)
}

// RDataHasValidSize returns whether rdata has a valid size for rrtype.
//
// Types without a meaningful size constraint accept any size. Unknown
// types are rejected, so this also restricts which records we serialize.
func RDataHasValidSize(rdata []byte, rrtype uint16) bool {
	switch rrtype {
	case dns.TypeSRV:
		// priority, weight and port, followed by the target
		return len(rdata) >= 6

	case dns.TypeA:
		return len(rdata) == 4

	case dns.TypeAAAA:
		return len(rdata) == 16

	case TypeExperimentalIntegrity:
		// nonce length prefix followed by at least a SHA-256 digest
		return len(rdata) >= 2+32

	case dns.TypeHTTPS:
		// TODO(bassosimone): replace with the RFC 9460 minimum once we
		// parse SvcPriority and TargetName out of HTTPS RDATA.
		return len(rdata) == 0

	case dns.TypeCNAME, dns.TypePTR, dns.TypeTXT, dns.TypeNSEC, dns.TypeOPT, dns.TypeSOA:
		return true

	default:
		return false
	}
}
