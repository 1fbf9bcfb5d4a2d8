// Copyright 2025 The go-lsnp Authors
// This file is part of the go-lsnp library.
//
// The go-lsnp library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-lsnp library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-lsnp library. If not, see <http://www.gnu.org/licenses/>.

// Package wire implements the LSNP text frame: one datagram carries one
// message made of "KEY: VALUE" lines terminated by a blank line.
package wire

import (
	"strings"
)

// Message is an ordered set of header fields. Keys are stored normalized
// (uppercase, no spaces, aliases collapsed). Unknown fields are carried
// through untouched so newer peers can extend the protocol freely.
type Message struct {
	keys   []string
	values map[string]string
}

// New returns an empty message of the given type.
func New(mtype string) *Message {
	m := &Message{values: make(map[string]string)}
	m.Set(FieldType, mtype)
	return m
}

// Parse decodes a frame. It never fails: lines without a colon and other
// malformed input are dropped, so consumers must tolerate missing fields.
func Parse(raw string) *Message {
	m := &Message{values: make(map[string]string)}
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		m.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return m
}

// Type returns the TYPE field.
func (m *Message) Type() string {
	return m.values[FieldType]
}

// Get returns the value of the given field, normalizing the key first.
func (m *Message) Get(key string) string {
	return m.values[NormalizeKey(key)]
}

// Has reports whether the field is present, even if empty.
func (m *Message) Has(key string) bool {
	_, ok := m.values[NormalizeKey(key)]
	return ok
}

// Set stores a field, keeping first-insertion order for encoding. Setting an
// existing key overwrites its value in place.
func (m *Message) Set(key, value string) *Message {
	k := NormalizeKey(key)
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = value
	return m
}

// Keys returns the field names in insertion order.
func (m *Message) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Encode serializes the message: TYPE first, remaining fields in insertion
// order, then the blank terminator line.
func (m *Message) Encode() []byte {
	var b strings.Builder
	if t, ok := m.values[FieldType]; ok {
		b.WriteString(FieldType)
		b.WriteString(": ")
		b.WriteString(t)
		b.WriteByte('\n')
	}
	for _, k := range m.keys {
		if k == FieldType {
			continue
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(m.values[k])
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// String returns the encoded frame without the trailing blank line, for logs.
func (m *Message) String() string {
	return strings.TrimRight(string(m.Encode()), "\n")
}

// keyAliases maps spelling variants seen on the wire to canonical field names.
var keyAliases = map[string]string{
	"MESSAGEID":      FieldMessageID,
	"GAMED":          FieldGameID,
	"USERID":         FieldUserID,
	"GROUPID":        FieldGroupID,
	"AVATARDATA":     FieldAvatarData,
	"AVATARENCODING": "AVATAR_ENCODING",
	"AVATARTYPE":     FieldAvatarType,
}

// NormalizeKey uppercases a header key, strips interior spacing and collapses
// known aliases.
func NormalizeKey(k string) string {
	k = strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(k)), " ", "")
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}
