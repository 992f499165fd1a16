package kuma

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// MonitorType is the server-side monitor type tag.
type MonitorType string

const (
	MonitorTypeDNS           MonitorType = "dns"
	MonitorTypeDocker        MonitorType = "docker"
	MonitorTypeGameDig       MonitorType = "gamedig"
	MonitorTypeGroup         MonitorType = "group"
	MonitorTypeGRPCKeyword   MonitorType = "grpc-keyword"
	MonitorTypeHTTP          MonitorType = "http"
	MonitorTypeJSONQuery     MonitorType = "json-query"
	MonitorTypeKafkaProducer MonitorType = "kafka-producer"
	MonitorTypeKeyword       MonitorType = "keyword"
	MonitorTypeMongoDB       MonitorType = "mongodb"
	MonitorTypeMQTT          MonitorType = "mqtt"
	MonitorTypeMySQL         MonitorType = "mysql"
	MonitorTypePing          MonitorType = "ping"
	MonitorTypePort          MonitorType = "port"
	MonitorTypePostgres      MonitorType = "postgres"
	MonitorTypePush          MonitorType = "push"
	MonitorTypeRadius        MonitorType = "radius"
	MonitorTypeRealBrowser   MonitorType = "real-browser"
	MonitorTypeRedis         MonitorType = "redis"
	MonitorTypeSteam         MonitorType = "steam"
	MonitorTypeSQLServer     MonitorType = "sqlserver"
	MonitorTypeTailscalePing MonitorType = "tailscale-ping"
	MonitorTypeSNMP          MonitorType = "snmp"
	MonitorTypeRabbitMQ      MonitorType = "rabbitmq"
)

var monitorTypes = map[MonitorType]struct{}{
	MonitorTypeDNS: {}, MonitorTypeDocker: {}, MonitorTypeGameDig: {},
	MonitorTypeGroup: {}, MonitorTypeGRPCKeyword: {}, MonitorTypeHTTP: {},
	MonitorTypeJSONQuery: {}, MonitorTypeKafkaProducer: {}, MonitorTypeKeyword: {},
	MonitorTypeMongoDB: {}, MonitorTypeMQTT: {}, MonitorTypeMySQL: {},
	MonitorTypePing: {}, MonitorTypePort: {}, MonitorTypePostgres: {},
	MonitorTypePush: {}, MonitorTypeRadius: {}, MonitorTypeRealBrowser: {},
	MonitorTypeRedis: {}, MonitorTypeSteam: {}, MonitorTypeSQLServer: {},
	MonitorTypeTailscalePing: {}, MonitorTypeSNMP: {}, MonitorTypeRabbitMQ: {},
}

// IsMonitorType reports whether tag names a known monitor type.
func IsMonitorType(tag string) bool {
	_, ok := monitorTypes[MonitorType(tag)]
	return ok
}

// Monitor holds the fields common to every monitor type plus the
// type-specific remainder in Extra, so unrecognized fields survive a
// round-trip through the server. The *Name fields are AutoKuma references:
// they never go on the wire (StripLocal removes them) and are excluded from
// the field-wise compare.
type Monitor struct {
	ID                  *Int
	Type                MonitorType
	Name                *string
	Description         *string
	Interval            *Int
	Active              *Bool
	MaxRetries          *Int
	RetryInterval       *Int
	UpsideDown          *Bool
	Parent              *Int
	Tags                []Tag
	NotificationIDList  BoolMap
	AcceptedStatusCodes StringList

	ParentName        *string
	CreatePaused      *Bool
	NotificationNames StringList
	TagNames          []TagValue
	DockerHostName    *string

	Extra map[string]json.RawMessage
}

// monitorKnownKeys maps every accepted wire or label spelling to its
// canonical field; anything else lands in Extra.
var monitorKnownKeys = map[string]string{
	"id": "id", "type": "type", "name": "name", "description": "description",
	"interval": "interval", "active": "active",
	"maxretries": "maxretries", "max_retries": "maxretries",
	"retryInterval": "retryInterval", "retry_interval": "retryInterval",
	"upsideDown": "upsideDown", "upside_down": "upsideDown",
	"parent": "parent", "tags": "tags",
	"notificationIDList": "notificationIDList", "notification_id_list": "notificationIDList",
	"accepted_statuscodes":   "accepted_statuscodes",
	"parent_name":            "parent_name",
	"create_paused":          "create_paused",
	"notification_name_list": "notification_name_list",
	"tag_names":              "tag_names",
	"docker_host_name":       "docker_host_name",
}

func (m *Monitor) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	canonical := make(map[string]json.RawMessage, len(fields))
	extra := make(map[string]json.RawMessage)
	for key, value := range fields {
		if name, ok := monitorKnownKeys[key]; ok {
			canonical[name] = value
		} else {
			extra[key] = value
		}
	}

	decode := func(key string, dst any) error {
		raw, ok := canonical[key]
		if !ok || string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("monitor field %s: %w", key, err)
		}
		return nil
	}

	out := Monitor{Extra: extra}
	if err := decode("id", &out.ID); err != nil {
		return err
	}
	if err := decode("type", &out.Type); err != nil {
		return err
	}
	if err := decode("name", &out.Name); err != nil {
		return err
	}
	if err := decode("description", &out.Description); err != nil {
		return err
	}
	if err := decode("interval", &out.Interval); err != nil {
		return err
	}
	if err := decode("active", &out.Active); err != nil {
		return err
	}
	if err := decode("maxretries", &out.MaxRetries); err != nil {
		return err
	}
	if err := decode("retryInterval", &out.RetryInterval); err != nil {
		return err
	}
	if err := decode("upsideDown", &out.UpsideDown); err != nil {
		return err
	}
	if err := decode("parent", &out.Parent); err != nil {
		return err
	}
	if err := decode("tags", &out.Tags); err != nil {
		return err
	}
	if err := decode("notificationIDList", &out.NotificationIDList); err != nil {
		return err
	}
	if err := decode("accepted_statuscodes", &out.AcceptedStatusCodes); err != nil {
		return err
	}
	if err := decode("parent_name", &out.ParentName); err != nil {
		return err
	}
	if err := decode("create_paused", &out.CreatePaused); err != nil {
		return err
	}
	if err := decode("notification_name_list", &out.NotificationNames); err != nil {
		return err
	}
	if err := decode("tag_names", &out.TagNames); err != nil {
		return err
	}
	if err := decode("docker_host_name", &out.DockerHostName); err != nil {
		return err
	}

	// Server defaults applied client-side so synthesized and listed monitors
	// compare on the same footing.
	if out.Interval == nil {
		out.Interval = intPtr(60)
	}
	if out.RetryInterval == nil {
		out.RetryInterval = intPtr(60)
	}
	if len(out.AcceptedStatusCodes) == 0 {
		out.AcceptedStatusCodes = StringList{"200-299"}
	}

	normalizeExtra(out.Extra)

	*m = out
	return nil
}

func (m Monitor) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(m.Extra)+16)
	for key, value := range m.Extra {
		fields[key] = value
	}

	fields["type"] = m.Type
	// Parent serializes even when nil: the server clears the group link on
	// an explicit null but keeps it on an absent key.
	fields["parent"] = m.Parent

	set := func(key string, value any, present bool) {
		if present {
			fields[key] = value
		}
	}
	set("id", m.ID, m.ID != nil)
	set("name", m.Name, m.Name != nil)
	set("description", m.Description, m.Description != nil)
	set("interval", m.Interval, m.Interval != nil)
	set("active", m.Active, m.Active != nil)
	set("maxretries", m.MaxRetries, m.MaxRetries != nil)
	set("retryInterval", m.RetryInterval, m.RetryInterval != nil)
	set("upsideDown", m.UpsideDown, m.UpsideDown != nil)
	set("tags", m.Tags, len(m.Tags) > 0)
	set("notificationIDList", m.NotificationIDList, m.NotificationIDList != nil)
	set("accepted_statuscodes", m.AcceptedStatusCodes, len(m.AcceptedStatusCodes) > 0)
	set("parent_name", m.ParentName, m.ParentName != nil)
	set("create_paused", m.CreatePaused, m.CreatePaused != nil)
	set("notification_name_list", m.NotificationNames, m.NotificationNames != nil)
	set("tag_names", m.TagNames, m.TagNames != nil)
	set("docker_host_name", m.DockerHostName, m.DockerHostName != nil)

	return json.Marshal(fields)
}

// Clone returns a deep copy via a JSON round-trip.
func (m Monitor) Clone() Monitor {
	data, _ := json.Marshal(m)
	var out Monitor
	_ = json.Unmarshal(data, &out)
	return out
}

// StripLocal removes the AutoKuma-only reference fields before the monitor
// is sent to the server.
func (m *Monitor) StripLocal() {
	m.ParentName = nil
	m.CreatePaused = nil
	m.NotificationNames = nil
	m.TagNames = nil
	m.DockerHostName = nil
}

// wirePayload marshals the monitor for an add/edit call: local fields
// stripped, tags stripped (bindings are reconciled per-tag), and the url
// fallback injected for the server's edit handler.
func (m Monitor) wirePayload() (json.RawMessage, error) {
	payload := m.Clone()
	payload.StripLocal()
	payload.Tags = nil

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if _, ok := fields["url"]; !ok {
		// editMonitor rejects a missing url even for types without one.
		fields["url"] = "https://"
	}
	return json.Marshal(fields)
}

// MonitorList is keyed by the server id rendered as a decimal string, as the
// server's monitorList broadcast is.
type MonitorList map[string]Monitor

func jsonEqual(a, b any) bool {
	dataA, errA := json.Marshal(a)
	dataB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	var valueA, valueB any
	if json.Unmarshal(dataA, &valueA) != nil || json.Unmarshal(dataB, &valueB) != nil {
		return false
	}
	return reflect.DeepEqual(valueA, valueB)
}
