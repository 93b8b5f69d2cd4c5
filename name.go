// SPDX-License-Identifier: GPL-3.0-or-later

package dnsresponse

import (
	"strings"

	"github.com/miekg/dns"
)

// maxLabelLength is the maximum length of a single label.
const maxLabelLength = 63

// DomainFromDot converts a dotted name (e.g., "www.example.com" or
// "www.example.com.") into its uncompressed wire format.
//
// The empty name, the root name, names containing escape sequences or
// empty labels, labels longer than 63 octets and names longer than 255
// octets are rejected.
func DomainFromDot(dotted string) ([]byte, bool) {
	if dotted == "" || dotted == "." || strings.ContainsRune(dotted, '\\') {
		return nil, false
	}
	for _, label := range strings.Split(strings.TrimSuffix(dotted, "."), ".") {
		if len(label) <= 0 || len(label) > maxLabelLength {
			return nil, false
		}
	}

	buf := make([]byte, maxNameLength)
	off, err := dns.PackDomainName(dns.Fqdn(dotted), buf, 0, nil, false)

	// PackDomainName does not fail when only the final zero octet
	// overflows the buffer, hence the explicit check
	if err != nil || off > len(buf) {
		return nil, false
	}
	return buf[:off], true
}

// DomainToString converts a wire-format name into the dotted form
// without the trailing root dot. The encoded name MUST NOT contain
// compression pointers and MUST span the whole input.
//
// Label octets are copied verbatim, like [*RecordParser.ReadName] does,
// so the result compares equal to the names of parsed records.
func DomainToString(encoded []byte) (string, bool) {
	var dotted string
	parser := NewRecordParser(encoded, 0, nil)
	consumed := parser.ReadName(0, &dotted)

	// a name ending with a pointer does not end with the root label
	if consumed <= 0 || consumed != len(encoded) || encoded[consumed-1] != 0 {
		return "", false
	}
	return dotted, true
}
