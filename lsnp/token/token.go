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

// Package token implements LSNP scoped bearer tokens. A token is the string
// "user|expiry_epoch_seconds|scope"; there is no cryptographic authenticity,
// holders are trusted within the LAN.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/lsnp/go-lsnp/common/mclock"
)

// Token scopes, constraining which message types a token may authorize.
const (
	ScopeChat      = "chat"
	ScopeBroadcast = "broadcast"
	ScopeFollow    = "follow"
	ScopeGroup     = "group"
	ScopeFile      = "file"
	ScopeGame      = "game"
)

// Make builds a token string.
func Make(userID string, expiry int64, scope string) string {
	return userID + "|" + strconv.FormatInt(expiry, 10) + "|" + scope
}

// Parse splits a token into its fields. It tolerates '|' and whitespace
// separators and any message split into at least three fields, matching what
// peers emit in the wild. Returns ok=false when no three fields can be
// recovered.
func Parse(tok string) (userID string, expiry int64, scope string, ok bool) {
	t := strings.TrimSpace(tok)
	for _, sep := range []string{"|", " "} {
		if strings.Count(t, sep) >= 2 {
			var parts []string
			for _, p := range strings.Split(t, sep) {
				if p != "" {
					parts = append(parts, p)
				}
			}
			if len(parts) >= 3 {
				exp, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
				if err == nil {
					return strings.TrimSpace(parts[0]), exp, strings.TrimSpace(parts[2]), true
				}
			}
		}
	}
	// Last resort: treat every separator alike.
	fields := strings.Fields(strings.ReplaceAll(t, "|", " "))
	if len(fields) >= 3 {
		if exp, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			return fields[0], exp, fields[2], true
		}
	}
	return "", 0, "", false
}

// Service validates and revokes tokens. Revocation is by SHA-256 of the exact
// token bytes and lasts for the process lifetime.
type Service struct {
	clock   mclock.Clock
	revoked mapset.Set[string]
}

// NewService creates a token service. A nil clock selects the system clock.
func NewService(clock mclock.Clock) *Service {
	if clock == nil {
		clock = mclock.System{}
	}
	return &Service{clock: clock, revoked: mapset.NewSet[string]()}
}

// Hash returns the hex SHA-256 of the token bytes.
func Hash(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

// Revoke marks a token as revoked. Revoking twice is a no-op.
func (s *Service) Revoke(tok string) {
	s.revoked.Add(Hash(tok))
}

// Revoked reports whether the token has been revoked.
func (s *Service) Revoked(tok string) bool {
	return s.revoked.Contains(Hash(tok))
}

// Validate reports whether tok authorizes claimedSender for expectedScope:
// the token must parse, name the sender, be unexpired, carry the expected
// scope and not be revoked.
func (s *Service) Validate(tok, expectedScope, claimedSender string) bool {
	userID, expiry, scope, ok := Parse(tok)
	if !ok || userID == "" {
		return false
	}
	if userID != claimedSender {
		return false
	}
	if s.clock.Unix() > expiry {
		return false
	}
	if scope != expectedScope {
		return false
	}
	return !s.Revoked(tok)
}
