package kuma

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorUnmarshalAliasesAndDefaults(t *testing.T) {
	input := `{
		"type": "http",
		"name": "Demo",
		"url": "https://example.com",
		"max_retries": "3",
		"retry_interval": 20,
		"upside_down": "true",
		"parent_name": "grp"
	}`

	var monitor Monitor
	require.NoError(t, json.Unmarshal([]byte(input), &monitor))

	assert.Equal(t, MonitorTypeHTTP, monitor.Type)
	require.NotNil(t, monitor.Name)
	assert.Equal(t, "Demo", *monitor.Name)
	require.NotNil(t, monitor.MaxRetries)
	assert.Equal(t, 3, int(*monitor.MaxRetries))
	require.NotNil(t, monitor.RetryInterval)
	assert.Equal(t, 20, int(*monitor.RetryInterval))
	require.NotNil(t, monitor.UpsideDown)
	assert.True(t, bool(*monitor.UpsideDown))
	require.NotNil(t, monitor.ParentName)
	assert.Equal(t, "grp", *monitor.ParentName)

	// Server defaults.
	require.NotNil(t, monitor.Interval)
	assert.Equal(t, 60, int(*monitor.Interval))
	assert.Equal(t, StringList{"200-299"}, monitor.AcceptedStatusCodes)

	// Type-specific fields survive in Extra.
	assert.Contains(t, monitor.Extra, "url")
}

func TestMonitorExtraSchemaCoercion(t *testing.T) {
	input := `{"type": "port", "name": "db", "hostname": "db.local", "port": "5432", "ignoreTls": "true"}`

	var monitor Monitor
	require.NoError(t, json.Unmarshal([]byte(input), &monitor))

	assert.Equal(t, json.RawMessage(`5432`), monitor.Extra["port"])
	assert.Equal(t, json.RawMessage(`true`), monitor.Extra["ignoreTls"])
	assert.Equal(t, json.RawMessage(`"db.local"`), monitor.Extra["hostname"])
}

func TestMonitorRoundTrip(t *testing.T) {
	input := `{"type": "http", "name": "Demo", "url": "https://example.com", "parent": 4, "customField": "kept"}`

	var monitor Monitor
	require.NoError(t, json.Unmarshal([]byte(input), &monitor))

	data, err := json.Marshal(monitor)
	require.NoError(t, err)

	var again Monitor
	require.NoError(t, json.Unmarshal(data, &again))

	assert.Equal(t, monitor.Type, again.Type)
	assert.Equal(t, *monitor.Name, *again.Name)
	assert.Equal(t, *monitor.Parent, *again.Parent)
	assert.Contains(t, again.Extra, "customField")
}

func TestMonitorParentSerializesWhenNil(t *testing.T) {
	monitor := Monitor{Type: MonitorTypeHTTP, Name: strPtr("m")}
	data, err := json.Marshal(monitor)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	raw, present := fields["parent"]
	require.True(t, present)
	assert.Equal(t, "null", string(raw))
}

func TestWirePayloadStripsLocalFieldsAndInjectsURL(t *testing.T) {
	monitor := Monitor{
		Type:       MonitorTypeGroup,
		Name:       strPtr("Apps"),
		ParentName: strPtr("other"),
		TagNames:   []TagValue{{Name: "team"}},
	}

	payload, err := monitor.wirePayload()
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(payload, &fields))

	assert.NotContains(t, fields, "parent_name")
	assert.NotContains(t, fields, "tag_names")
	assert.Equal(t, "https://", fields["url"])
}

func TestExtractResult(t *testing.T) {
	okResponse := []json.RawMessage{json.RawMessage(`{"ok": true, "monitorID": 7}`)}
	var id Int
	require.NoError(t, extractResult("add", okResponse, "/monitorID", true, &id))
	assert.Equal(t, 7, int(id))

	failed := []json.RawMessage{json.RawMessage(`{"ok": false, "msg": "no permission"}`)}
	err := extractResult("add", failed, "/monitorID", true, &id)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "no permission", remote.Message)

	// Unverified calls pass the envelope through.
	var login loginResponse
	require.NoError(t, extractResult("login", failed, "", false, &login))
	assert.False(t, login.OK)

	err = extractResult("add", okResponse, "/missing", true, &id)
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
}

func TestDockerHostAliases(t *testing.T) {
	var host DockerHost
	require.NoError(t, json.Unmarshal([]byte(`{"connection_type": "socket", "path": "/var/run/docker.sock"}`), &host))
	require.NotNil(t, host.ConnectionType)
	assert.Equal(t, DockerConnectionSocket, *host.ConnectionType)
	require.NotNil(t, host.Host)
	assert.Equal(t, "/var/run/docker.sock", *host.Host)
}
