// Package feed holds the domain types shared by the notification store,
// the live channel client, and the surfaces that render them.
package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// ID is the opaque notification identifier. It is stable across the initial
// fetch and live push delivery and is the key used for deduplication.
//
// The backend serializes ids as JSON numbers; the stub server uses strings.
// Both decode into the same opaque value.
type ID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("notification id: empty value")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("notification id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("notification id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Notification is a single server-originated event targeted at one user.
type Notification struct {
	ID        ID        `json:"id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// timestampFormats lists the wire formats the backend emits. Spring's
// LocalDateTime has no zone suffix, so RFC3339 alone is not enough.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON decodes a notification from its wire form. Older payloads
// carry the text under "content" instead of "message"; both are accepted.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID        ID     `json:"id"`
		Message   string `json:"message"`
		Content   string `json:"content"`
		IsRead    bool   `json:"isRead"`
		CreatedAt string `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	n.ID = wire.ID
	n.Message = wire.Message
	if n.Message == "" {
		n.Message = wire.Content
	}
	n.IsRead = wire.IsRead

	n.CreatedAt = time.Time{}
	if wire.CreatedAt != "" {
		var err error
		for _, layout := range timestampFormats {
			if n.CreatedAt, err = time.Parse(layout, wire.CreatedAt); err == nil {
				break
			}
		}
		if err != nil {
			return fmt.Errorf("notification createdAt %q: %w", wire.CreatedAt, err)
		}
	}
	return nil
}

// MarshalJSON emits the canonical wire form ("message", RFC3339 timestamp).
func (n Notification) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID        ID     `json:"id"`
		Message   string `json:"message"`
		IsRead    bool   `json:"isRead"`
		CreatedAt string `json:"createdAt"`
	}
	return json.Marshal(wire{
		ID:        n.ID,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.Format(time.RFC3339Nano),
	})
}
