package kuma

// Notification is a notification provider. Config carries the
// provider-specific settings as an opaque blob; the server mirrors some
// envelope attributes into the blob, which ConfigEqual ignores when
// comparing.
type Notification struct {
	ID        *Int       `json:"id,omitempty"`
	Name      *string    `json:"name,omitempty"`
	Active    *Bool      `json:"active,omitempty"`
	UserID    *Int       `json:"user_id,omitempty"`
	IsDefault *Bool      `json:"isDefault,omitempty"`
	Config    JSONObject `json:"config,omitempty"`
}

// configIgnoredAttributes are envelope fields the server copies into the
// config blob on save; they never originate from labels.
var configIgnoredAttributes = map[string]struct{}{
	"isDefault": {},
	"id":        {},
	"active":    {},
	"user_id":   {},
	"config":    {},
	"name":      {},
}

// ConfigEqual compares two provider config blobs, ignoring the
// server-mirrored envelope attributes.
func ConfigEqual(a, b JSONObject) bool {
	if a == nil && b == nil {
		return true
	}
	countA, countB := 0, 0
	for key := range a {
		if _, skip := configIgnoredAttributes[key]; !skip {
			countA++
		}
	}
	for key := range b {
		if _, skip := configIgnoredAttributes[key]; !skip {
			countB++
		}
	}
	if countA != countB {
		return false
	}
	for key, valueA := range a {
		if _, skip := configIgnoredAttributes[key]; skip {
			continue
		}
		valueB, ok := b[key]
		if !ok || !jsonEqual(valueA, valueB) {
			return false
		}
	}
	return true
}
