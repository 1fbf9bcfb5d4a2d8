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

// Message types.
const (
	TypePing         = "PING"
	TypeProfile      = "PROFILE"
	TypeDM           = "DM"
	TypePost         = "POST"
	TypeFollow       = "FOLLOW"
	TypeUnfollow     = "UNFOLLOW"
	TypeLike         = "LIKE"
	TypeGroupCreate  = "GROUP_CREATE"
	TypeGroupUpdate  = "GROUP_UPDATE"
	TypeGroupMessage = "GROUP_MESSAGE"
	TypeFileOffer    = "FILE_OFFER"
	TypeFileChunk    = "FILE_CHUNK"
	TypeFileReceived = "FILE_RECEIVED"
	TypeGameInvite   = "TICTACTOE_INVITE"
	TypeGameMove     = "TICTACTOE_MOVE"
	TypeGameResult   = "TICTACTOE_RESULT"
	TypeAck          = "ACK"
	TypeRevoke       = "REVOKE"
)

// Canonical field names.
const (
	FieldType        = "TYPE"
	FieldUserID      = "USER_ID"
	FieldFrom        = "FROM"
	FieldTo          = "TO"
	FieldContent     = "CONTENT"
	FieldTimestamp   = "TIMESTAMP"
	FieldTTL         = "TTL"
	FieldToken       = "TOKEN"
	FieldMessageID   = "MESSAGE_ID"
	FieldStatus      = "STATUS"
	FieldAvatarType  = "AVATAR_TYPE"
	FieldAvatarData  = "AVATAR_DATA"
	FieldPort        = "PORT"
	FieldDisplayName = "DISPLAY_NAME"
	FieldAction      = "ACTION"
	FieldPostTS      = "POST_TIMESTAMP"
	FieldGroupID     = "GROUP_ID"
	FieldGroupName   = "GROUP_NAME"
	FieldMembers     = "MEMBERS"
	FieldAdd         = "ADD"
	FieldRemove      = "REMOVE"
	FieldFileID      = "FILEID"
	FieldFilename    = "FILENAME"
	FieldFilesize    = "FILESIZE"
	FieldFiletype    = "FILETYPE"
	FieldDescription = "DESCRIPTION"
	FieldChunkIndex  = "CHUNK_INDEX"
	FieldTotalChunks = "TOTAL_CHUNKS"
	FieldChunkSize   = "CHUNK_SIZE"
	FieldData        = "DATA"
	FieldGameID      = "GAMEID"
	FieldSymbol      = "SYMBOL"
	FieldPosition    = "POSITION"
	FieldTurn        = "TURN"
	FieldResult      = "RESULT"
	FieldWinningLine = "WINNING_LINE"
)

// ackTracked holds the message types whose sends are registered with the ACK
// manager and whose receipt triggers an auto-ACK.
var ackTracked = map[string]struct{}{
	TypeGameInvite: {},
	TypeGameMove:   {},
	TypeFileChunk:  {},
	TypeFileOffer:  {},
	TypeDM:         {},
}

// AckTracked reports whether the given message type participates in the
// ACK/retry reliability layer.
func AckTracked(mtype string) bool {
	_, ok := ackTracked[mtype]
	return ok
}

// suppressed holds housekeeping types that produce no user-facing output
// unless verbose tracing is on.
var suppressed = map[string]struct{}{
	TypePing:         {},
	TypeAck:          {},
	TypeFileReceived: {},
	TypeRevoke:       {},
}

// Suppressed reports whether a type is hidden from non-verbose display.
func Suppressed(mtype string) bool {
	_, ok := suppressed[mtype]
	return ok
}
