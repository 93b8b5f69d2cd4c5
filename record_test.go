// SPDX-License-Identifier: GPL-3.0-or-later

package dnsresponse

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestNewResourceRecordOwnsRData(t *testing.T) {
	rdata := []byte{127, 0, 0, 1}
	rr := NewResourceRecord("example.com", dns.TypeA, dns.ClassINET, 60, rdata)

	require.True(t, rr.OwnsRData())
	require.Equal(t, rdata, rr.RData())
	_, fromWire := rr.RDataOffset()
	require.False(t, fromWire)

	// the record holds a copy, so the caller can reuse its buffer
	rdata[0] = 10
	require.Equal(t, []byte{127, 0, 0, 1}, rr.RData())

	// copies of the record still satisfy the ownership invariant
	other := rr
	require.True(t, other.OwnsRData())
	require.True(t, other.Equal(rr))
	require.True(t, other.serializable())
}

func TestNewResourceRecordEmptyRData(t *testing.T) {
	rr := NewResourceRecord("example.com", dns.TypeHTTPS, dns.ClassINET, 60, nil)
	require.False(t, rr.OwnsRData())
	require.Empty(t, rr.RData())
	require.True(t, rr.serializable())
}

func TestResourceRecordOwned(t *testing.T) {
	buf := newTestRecords()
	parser := NewRecordParser(buf, 0, nil)
	var parsed ResourceRecord
	require.True(t, parser.ReadRecord(&parsed))
	require.False(t, parsed.serializable())

	owned := parsed.Owned()
	require.True(t, owned.OwnsRData())
	require.True(t, owned.serializable())
	require.True(t, owned.Equal(parsed))
	_, fromWire := owned.RDataOffset()
	require.False(t, fromWire)

	// modifying the parsed buffer does not affect the owned copy
	buf[23] = 0
	require.Equal(t, []byte{93, 184, 216, 34}, owned.RData())
	require.Equal(t, []byte{0, 184, 216, 34}, parsed.RData())
}

func TestResourceRecordSetOwnedRData(t *testing.T) {
	var rr ResourceRecord
	rr.SetOwnedRData([]byte{1, 2})
	require.True(t, rr.OwnsRData())
	rr.SetOwnedRData([]byte{})
	require.False(t, rr.OwnsRData())
	require.Nil(t, rr.RData())
}

func TestResourceRecordEqual(t *testing.T) {
	base := NewResourceRecord("example.com", dns.TypeA, dns.ClassINET, 60, []byte{1, 2, 3, 4})

	tests := []struct {
		name   string
		modify func(*ResourceRecord)
		equal  bool
	}{
		{"Same", func(rr *ResourceRecord) {}, true},
		{"Name", func(rr *ResourceRecord) { rr.Name = "example.org" }, false},
		{"Type", func(rr *ResourceRecord) { rr.Type = dns.TypeAAAA }, false},
		{"Class", func(rr *ResourceRecord) { rr.Class = dns.ClassCHAOS }, false},
		{"TTL", func(rr *ResourceRecord) { rr.TTL = 61 }, false},
		{"RData", func(rr *ResourceRecord) { rr.SetOwnedRData([]byte{1, 2, 3, 5}) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			tt.modify(&other)
			require.Equal(t, tt.equal, base.Equal(other))
		})
	}
}

func TestResourceRecordEncodedSize(t *testing.T) {
	tests := []struct {
		name   string
		rrname string
		rdata  []byte
		expect int
	}{
		{"WithoutFinalDot", "example.com", []byte{1, 2, 3, 4}, 13 + 10 + 4},
		{"WithFinalDot", "example.com.", []byte{1, 2, 3, 4}, 13 + 10 + 4},
		{"NoRData", "a.b", nil, 5 + 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := NewResourceRecord(tt.rrname, dns.TypeA, dns.ClassINET, 0, tt.rdata)
			require.Equal(t, tt.expect, rr.EncodedSize())

			name, ok := DomainFromDot(tt.rrname)
			require.True(t, ok)
			require.Equal(t, tt.expect, len(name)+rrFixedSize+len(tt.rdata))
		})
	}
}

func TestRDataHasValidSize(t *testing.T) {
	tests := []struct {
		name   string
		rrtype uint16
		size   int
		valid  bool
	}{
		{"SRVTooShort", dns.TypeSRV, 5, false},
		{"SRVMinimum", dns.TypeSRV, 6, true},
		{"SRVLonger", dns.TypeSRV, 20, true},
		{"AShort", dns.TypeA, 3, false},
		{"AExact", dns.TypeA, 4, true},
		{"ALong", dns.TypeA, 5, false},
		{"AAAAShort", dns.TypeAAAA, 15, false},
		{"AAAAExact", dns.TypeAAAA, 16, true},
		{"AAAALong", dns.TypeAAAA, 17, false},
		{"IntegrityTooShort", TypeExperimentalIntegrity, 33, false},
		{"IntegrityMinimum", TypeExperimentalIntegrity, 34, true},
		{"HTTPSEmpty", dns.TypeHTTPS, 0, true},
		{"HTTPSNonEmpty", dns.TypeHTTPS, 1, false},
		{"CNAME", dns.TypeCNAME, 100, true},
		{"PTR", dns.TypePTR, 0, true},
		{"TXT", dns.TypeTXT, 300, true},
		{"NSEC", dns.TypeNSEC, 7, true},
		{"OPT", dns.TypeOPT, 0, true},
		{"SOA", dns.TypeSOA, 22, true},
		{"MXUnsupported", dns.TypeMX, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.valid, RDataHasValidSize(make([]byte, tt.size), tt.rrtype))
		})
	}
}
