// SPDX-License-Identifier: BSD-3-Clause

package dnsresponse

import (
	"testing"

	"github.com/bassosimone/runtimex"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestQueryClone(t *testing.T) {
	query := &Query{
		Name:    "www.example.com",
		Type:    dns.TypeA,
		Flags:   QueryFlagBlockLengthPadding | QueryFlagDNSSec,
		ID:      1234,
		MaxSize: QueryMaxResponseSizeTCP,
	}

	clone := query.Clone()

	require.NotSame(t, query, clone)
	require.Equal(t, query, clone)

	clone.Name = "www.example.net"
	clone.Type = dns.TypeAAAA
	clone.Flags = 0
	clone.ID = 5678
	clone.MaxSize = QueryMaxResponseSizeUDP

	require.Equal(t, "www.example.com", query.Name)
	require.Equal(t, dns.TypeA, query.Type)
	require.Equal(t, uint16(QueryFlagBlockLengthPadding|QueryFlagDNSSec), query.Flags)
	require.Equal(t, uint16(1234), query.ID)
	require.Equal(t, uint16(QueryMaxResponseSizeTCP), query.MaxSize)
}

func TestQueryNewMsgIDNA(t *testing.T) {
	query := &Query{
		Name:    "bücher.example",
		Type:    dns.TypeA,
		ID:      42,
		MaxSize: QueryMaxResponseSizeUDP,
	}

	msg, err := query.NewMsg()
	require.NoError(t, err)
	require.Len(t, msg.Question, 1)
	require.Equal(t, "xn--bcher-kva.example.", msg.Question[0].Name)
}

func TestQueryNewMsgIDNAError(t *testing.T) {
	query := &Query{
		Name: "bad name.example",
		Type: dns.TypeA,
	}

	_, err := query.NewMsg()
	require.Error(t, err)
}

func TestQueryNewMsgPadding(t *testing.T) {
	query := NewQuery("www.example.com", dns.TypeA)
	query.ID = 1

	msgBase := runtimex.PanicOnError1(query.NewMsg())
	rawBase := runtimex.PanicOnError1(msgBase.Pack())
	baseLen := len(rawBase)

	queryPad := query.Clone()
	queryPad.Flags |= QueryFlagBlockLengthPadding
	msgPad := runtimex.PanicOnError1(queryPad.NewMsg())
	rawPad := runtimex.PanicOnError1(msgPad.Pack())

	expectedPadding := int((128 - uint16(baseLen+4)) % 128)

	var pad *dns.EDNS0_PADDING
	for _, opt := range msgPad.IsEdns0().Option {
		if p, ok := opt.(*dns.EDNS0_PADDING); ok {
			pad = p
			break
		}
	}
	require.NotNil(t, pad)
	require.Len(t, pad.Padding, expectedPadding)
	require.Equal(t, baseLen+4+expectedPadding, len(rawPad))
	require.Equal(t, 0, len(rawPad)%128)
}

func TestQueryQuestion(t *testing.T) {
	query := NewQuery("www.example.com", dns.TypeAAAA)

	question, err := query.Question()
	require.NoError(t, err)
	require.Equal(t, []byte{
		3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0,
		0, 28, // AAAA
		0, 1, // IN
	}, question)

	size, err := query.QuestionSize()
	require.NoError(t, err)
	require.Equal(t, len(question), size)
	require.Equal(t, dns.TypeAAAA, query.Qtype())
}

func TestQueryQuestionMatchesNewMsg(t *testing.T) {
	query := NewQuery("bücher.example", dns.TypeA)
	query.Flags = 0

	msg := runtimex.PanicOnError1(query.NewMsg())
	msg.Extra = nil // drop the OPT record
	raw := runtimex.PanicOnError1(msg.Pack())

	question := runtimex.PanicOnError1(query.Question())
	require.Equal(t, raw[HeaderSize:], question)
}

func TestQueryQuestionErrors(t *testing.T) {
	tests := []struct {
		name  string
		qname string
	}{
		{"IDNAError", "bad name.example"},
		{"EmptyName", ""},
		{"EmptyLabel", "www..example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := NewQuery(tt.qname, dns.TypeA)
			_, err := query.Question()
			require.ErrorIs(t, err, ErrInvalidQuery)
			_, err = query.QuestionSize()
			require.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}
