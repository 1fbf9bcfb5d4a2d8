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

import (
	crand "crypto/rand"
	"encoding/hex"
)

// NewMessageID returns a fresh 64-bit random identifier in lowercase hex.
// Message IDs must stay stable across retries of the same send so receivers
// can de-duplicate.
func NewMessageID() string {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic("wire: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// NewShortID returns an 8-character hex identifier, used for FILEID and
// GAMEID values where brevity helps the interactive commands.
func NewShortID() string {
	return NewMessageID()[:8]
}
