// SPDX-License-Identifier: GPL-3.0-or-later

package dnsresponse

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/cryptobyte"
)

const (
	// labelMask selects the two bits distinguishing labels from pointers.
	labelMask = 0xc0

	// labelPointer marks a compression pointer (RFC 1035 Sec. 4.1.4).
	labelPointer = 0xc0

	// labelDirect marks a length-prefixed label.
	labelDirect = 0x00

	// offsetMask selects the 14-bit offset of a compression pointer.
	offsetMask = 0x3fff

	// maxNameLength is the maximum number of octets of an encoded name,
	// counting both label octets and length octets (RFC 1034 Sec. 3.1).
	maxNameLength = 255

	// qtypeQclassSize is the size of QTYPE and QCLASS.
	qtypeQclassSize = 2 * 2
)

// RecordParser reads resource records and names from a DNS message.
//
// The parser borrows the buffer it reads from. The buffer MUST NOT be
// modified while parsers referencing it are in use. Copying a parser by
// value creates an independent cursor over the same buffer.
//
// The zero value is an invalid parser. Construct using [NewRecordParser].
type RecordParser struct {
	buf    []byte
	cur    int
	logger *zap.Logger
}

// NewRecordParser returns a [RecordParser] positioned at offset inside buf.
//
// The returned parser is invalid when buf is nil or offset is outside
// of the [0, len(buf)] range. A nil logger disables logging.
func NewRecordParser(buf []byte, offset int, logger *zap.Logger) RecordParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buf == nil || offset < 0 || offset > len(buf) {
		logger.Debug("dnsresponse: invalid parser offset",
			zap.Int("offset", offset),
			zap.Int("length", len(buf)),
		)
		return RecordParser{}
	}
	return RecordParser{buf: buf, cur: offset, logger: logger}
}

// IsValid returns whether the parser references a buffer.
func (p *RecordParser) IsValid() bool {
	return p.buf != nil
}

// Offset returns the current cursor offset.
func (p *RecordParser) Offset() int {
	return p.cur
}

// AtEnd returns whether the cursor reached the end of the buffer.
func (p *RecordParser) AtEnd() bool {
	return p.cur == len(p.buf)
}

func (p *RecordParser) abort(reason string, fields ...zap.Field) {
	if p.logger == nil {
		return
	}
	if ce := p.logger.Check(zap.DebugLevel, "dnsresponse: abort parsing of noncompliant DNS record"); ce != nil {
		ce.Write(append(fields, zap.String("reason", reason))...)
	}
}

// ReadName decodes the possibly compressed name starting at pos and
// returns the number of bytes it occupies at pos, or zero on failure.
//
// When out is not nil, it receives the dotted name without the trailing
// root dot. When out is nil, ReadName stops at the first compression
// pointer, since the number of consumed bytes is known at that point.
func (p *RecordParser) ReadName(pos int, out *string) int {
	end := len(p.buf)
	if pos < 0 || pos >= end {
		p.abort("name starts outside of the buffer", zap.Int("pos", pos))
		return 0
	}
	if out != nil {
		*out = ""
	}

	var (
		// seen counts the bytes walked through so far to detect loops
		seen int

		// consumed is the number of bytes before the first pointer
		consumed int

		// encodedLen sums label octets and length octets
		encodedLen int

		name strings.Builder
	)

	cur := pos
	for {
		switch p.buf[cur] & labelMask {
		case labelPointer:
			s := cryptobyte.String(p.buf[cur:])
			var ptr uint16
			if !s.ReadUint16(&ptr) {
				p.abort("truncated or missing label pointer", zap.Int("pos", cur))
				return 0
			}
			if consumed == 0 {
				consumed = cur - pos + 2
				if out == nil {
					return consumed
				}
			}
			seen += 2
			if seen > end {
				p.abort("detected loop in label pointers", zap.Int("pos", cur))
				return 0
			}
			target := int(ptr & offsetMask)
			if target >= end {
				p.abort("label pointer points outside packet", zap.Int("target", target))
				return 0
			}
			cur = target

		case labelDirect:
			labelLen := int(p.buf[cur])
			cur++
			encodedLen += 1 + labelLen
			if encodedLen > maxNameLength {
				p.abort("name is too long", zap.Int("encodedLen", encodedLen))
				return 0
			}
			if labelLen == 0 {
				if consumed == 0 {
					consumed = cur - pos
				}
				if out != nil {
					*out = name.String()
				}
				return consumed
			}
			// the name terminator must follow the label
			if cur+labelLen >= end {
				p.abort("truncated or missing label", zap.Int("pos", cur))
				return 0
			}
			if out != nil {
				if name.Len() > 0 {
					name.WriteByte('.')
				}
				name.Write(p.buf[cur : cur+labelLen])
			}
			cur += labelLen
			seen += 1 + labelLen

		default:
			p.abort("unhandled label type", zap.Uint8("octet", p.buf[cur]))
			return 0
		}
	}
}

// ReadRecord reads the resource record at the cursor into out and
// advances the cursor past it. The RDATA of out is a view into the
// parser buffer. On failure, the cursor does not move.
//
// The RDATA size is not validated against the record type.
func (p *RecordParser) ReadRecord(out *ResourceRecord) bool {
	var name string
	consumed := p.ReadName(p.cur, &name)
	if consumed == 0 {
		return false
	}

	var (
		rrtype, class, rdlength uint16
		ttl                     uint32
		rdata                   []byte
	)
	s := cryptobyte.String(p.buf[p.cur+consumed:])
	if !s.ReadUint16(&rrtype) ||
		!s.ReadUint16(&class) ||
		!s.ReadUint32(&ttl) ||
		!s.ReadUint16(&rdlength) ||
		!s.ReadBytes(&rdata, int(rdlength)) {
		p.abort("truncated resource record", zap.String("name", name))
		return false
	}

	next := len(p.buf) - len(s)
	*out = ResourceRecord{
		Name:        name,
		Type:        rrtype,
		Class:       class,
		TTL:         ttl,
		rdata:       rdata[:len(rdata):len(rdata)],
		fromWire:    true,
		rdataOffset: next - len(rdata),
	}
	p.cur = next
	return true
}

// SkipQuestion advances the cursor past a question entry.
func (p *RecordParser) SkipQuestion() bool {
	consumed := p.ReadName(p.cur, nil)
	if consumed == 0 {
		return false
	}
	next := p.cur + consumed + qtypeQclassSize
	if next > len(p.buf) {
		p.abort("truncated question", zap.Int("pos", p.cur))
		return false
	}
	p.cur = next
	return true
}
