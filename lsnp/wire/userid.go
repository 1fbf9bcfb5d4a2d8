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

package wire

import "strings"

// A user identifier has the form "name@ipv4". The embedded IP addresses the
// peer before discovery and validates the source of received datagrams.

// MakeUserID joins a display name and an IPv4 address into a user identifier.
func MakeUserID(name, ip string) string {
	return name + "@" + ip
}

// IPFromUserID extracts the IP embedded in a user identifier, or "" if the
// identifier carries none.
func IPFromUserID(uid string) string {
	if _, ip, ok := strings.Cut(uid, "@"); ok {
		return strings.TrimSpace(ip)
	}
	return ""
}

// LocalName returns the name part of a user identifier. Identifiers without
// an @ are returned whole.
func LocalName(uid string) string {
	name, _, _ := strings.Cut(uid, "@")
	return name
}
