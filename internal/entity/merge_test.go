package entity

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autokuma/autokuma/pkg/kuma"
)

func monitorFromJSON(t *testing.T, src string) Entity {
	t.Helper()
	var monitor kuma.Monitor
	require.NoError(t, json.Unmarshal([]byte(src), &monitor))
	return Entity{Kind: KindMonitor, Monitor: &monitor}
}

func TestMergeKeepsServerFieldsLabelsDidNotSet(t *testing.T) {
	current := monitorFromJSON(t, `{"type":"http","name":"Demo","url":"https://a","interval":120,"description":"set on server"}`)
	desired := monitorFromJSON(t, `{"type":"http","name":"Demo","url":"https://b"}`)

	merged := Merge(current, desired)

	assert.JSONEq(t, `"https://b"`, string(merged.Monitor.Extra["url"]))
	assert.Equal(t, "set on server", *merged.Monitor.Description)
	// Desired carries the decode-time default interval 60, which wins.
	assert.Equal(t, 60, int(*merged.Monitor.Interval))
}

func TestEqualIgnoresServerAssignedFields(t *testing.T) {
	current := monitorFromJSON(t, `{"type":"http","id":12,"active":true,"name":"Demo","url":"https://a"}`)
	desired := monitorFromJSON(t, `{"type":"http","name":"Demo","url":"https://a"}`)

	assert.True(t, Equal(current, Merge(current, desired)))
}

func TestEqualDetectsFieldDrift(t *testing.T) {
	current := monitorFromJSON(t, `{"type":"http","id":12,"name":"Demo","url":"https://a"}`)
	desired := monitorFromJSON(t, `{"type":"http","name":"Renamed","url":"https://a"}`)

	assert.False(t, Equal(current, Merge(current, desired)))
}

func TestEqualNormalizesStatusCodeRanges(t *testing.T) {
	enumerated := make([]string, 0, 100)
	for code := 200; code <= 299; code++ {
		enumerated = append(enumerated, strconv.Itoa(code))
	}
	enumeratedJSON, err := json.Marshal(enumerated)
	require.NoError(t, err)

	current := monitorFromJSON(t, `{"type":"http","name":"D","url":"https://a","accepted_statuscodes":`+string(enumeratedJSON)+`}`)
	desired := monitorFromJSON(t, `{"type":"http","name":"D","url":"https://a","accepted_statuscodes":["200-299"]}`)

	assert.True(t, Equal(current, Merge(current, desired)))
}

func TestEqualComparesTagBindingsAsSet(t *testing.T) {
	current := monitorFromJSON(t, `{"type":"http","name":"D","url":"https://a","tags":[{"tag_id":1,"name":"a"},{"tag_id":2,"name":"b"}]}`)
	reordered := monitorFromJSON(t, `{"type":"http","name":"D","url":"https://a","tags":[{"tag_id":2},{"tag_id":1}]}`)

	assert.True(t, Equal(current, Merge(current, reordered)))

	differentValue := monitorFromJSON(t, `{"type":"http","name":"D","url":"https://a","tags":[{"tag_id":1,"value":"x"},{"tag_id":2}]}`)
	assert.False(t, Equal(current, Merge(current, differentValue)))
}

func TestEqualNotificationConfigMasksEnvelope(t *testing.T) {
	currentNotification := kuma.Notification{
		Name:   strPtr("Mail"),
		Config: kuma.JSONObject{"smtpHost": "mail.local", "id": float64(3), "name": "Mail"},
	}
	desiredNotification := kuma.Notification{
		Name:   strPtr("Mail"),
		Config: kuma.JSONObject{"smtpHost": "mail.local"},
	}
	current := Entity{Kind: KindNotification, Notification: &currentNotification}
	desired := Entity{Kind: KindNotification, Notification: &desiredNotification}

	assert.True(t, Equal(current, Merge(current, desired)))

	desiredNotification.Config["smtpHost"] = "other.local"
	assert.False(t, Equal(current, Merge(current, desired)))
}

func strPtr(s string) *string { return &s }
