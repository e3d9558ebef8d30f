package memory

import (
	"crypto/sha256"
	"encoding/hex"

	"analyzer/types"
)

// RangeHash computes an order-sensitive digest over a turn sequence. Each
// turn contributes its text and role label, so identical ordered (role, text)
// sequences always hash the same and any reordering or edit changes the key.
func RangeHash(turns []types.ConversationTurn) string {
	digest := sha256.New()
	for _, t := range turns {
		digest.Write([]byte(t.Text))
		digest.Write([]byte(t.Role.Label()))
	}
	return hex.EncodeToString(digest.Sum(nil))
}
