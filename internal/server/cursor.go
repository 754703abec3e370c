// internal/server/cursor.go
package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// cursor is the opaque keyset pagination token: the slot date and row
// id of the last article on the previous page.
type cursor struct {
	SlotDate string `json:"s"`
	ID       int64  `json:"id"`
}

func encodeCursor(c cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (cursor, error) {
	var c cursor
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, fmt.Errorf("malformed cursor: %w", err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("malformed cursor: %w", err)
	}
	if c.SlotDate == "" || c.ID <= 0 {
		return c, fmt.Errorf("malformed cursor")
	}
	return c, nil
}
