// SPDX-License-Identifier: GPL-3.0-or-later

// Package dnsresponse is a DNS response message parser and serializer.
//
// [RecordParser] reads resource records and RFC 1035 compressed names from
// a message buffer, guarding against truncated input, names longer than 255
// octets and compression pointer loops.
//
// [*Response] owns a message buffer. Use [NewResponse] to receive a message
// and [*Response.InitParse] to validate it against a [*Query], or use
// [BuildResponse] to serialize a list of [ResourceRecord] into a message
// that is immediately parsed back. [ParseAnswers] extracts the answers
// pertaining to the question, following CNAME chains.
//
// We use [github.com/miekg/dns] for type constants and name conversions
// and for marshalling queries with [*Query.NewMsg].
package dnsresponse
