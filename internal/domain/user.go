package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UserID is a user reference on the wire. Producers send it either as a JSON
// integer or as a string; canonical integers are written back as numbers.
type UserID string

func (u UserID) MarshalJSON() ([]byte, error) {
	s := string(u)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func (u *UserID) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(raw, []byte("null")):
		*u = ""
		return nil
	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*u = UserID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("user_id must be a string or an integer: %w", err)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("user_id must be a string or an integer: %w", err)
	}
	*u = UserID(strconv.FormatInt(v, 10))
	return nil
}

func (u UserID) String() string { return string(u) }
