package kuma

import (
	"encoding/json"
	"fmt"
)

// Maintenance strategies recognized by the server.
const (
	MaintenanceStrategyManual            = "manual"
	MaintenanceStrategySingle            = "single"
	MaintenanceStrategyCron              = "cron"
	MaintenanceStrategyRecurringInterval = "recurring-interval"
	MaintenanceStrategyRecurringWeekday  = "recurring-weekday"
	MaintenanceStrategyRecurringDOM      = "recurring-day-of-month"
)

// Maintenance is a maintenance window. Strategy-specific fields (cron,
// weekdays, daysOfMonth, timeslotList, ...) live in Extra so each strategy's
// shape round-trips without a variant per strategy.
type Maintenance struct {
	ID          *Int
	Strategy    string
	Title       *string
	Description *string
	Active      *Bool

	Monitors    []MaintenanceMonitor
	StatusPages []MaintenanceStatusPage

	// MonitorNames / StatusPageNames are AutoKuma references, resolved to
	// the binding lists before RPC and never sent to the server.
	MonitorNames    StringList
	StatusPageNames StringList

	Extra map[string]json.RawMessage
}

type MaintenanceMonitor struct {
	ID       *Int    `json:"id,omitempty"`
	PathName *string `json:"pathName,omitempty"`
}

type MaintenanceStatusPage struct {
	ID   *Int    `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}

var maintenanceKnownKeys = map[string]string{
	// "type" is the label-grammar discriminator, not a wire field.
	"type": "type",
	"id":   "id", "strategy": "strategy", "title": "title",
	"description": "description", "active": "active",
	"monitors": "monitors", "statusPages": "statusPages",
	"status_pages":  "statusPages",
	"monitor_names": "monitor_names", "status_page_names": "status_page_names",
}

func (m *Maintenance) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	canonical := make(map[string]json.RawMessage, len(fields))
	extra := make(map[string]json.RawMessage)
	for key, value := range fields {
		if name, ok := maintenanceKnownKeys[key]; ok {
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
			return fmt.Errorf("maintenance field %s: %w", key, err)
		}
		return nil
	}

	out := Maintenance{Extra: extra}
	if err := decode("id", &out.ID); err != nil {
		return err
	}
	if err := decode("strategy", &out.Strategy); err != nil {
		return err
	}
	if err := decode("title", &out.Title); err != nil {
		return err
	}
	if err := decode("description", &out.Description); err != nil {
		return err
	}
	if err := decode("active", &out.Active); err != nil {
		return err
	}
	if err := decode("monitors", &out.Monitors); err != nil {
		return err
	}
	if err := decode("statusPages", &out.StatusPages); err != nil {
		return err
	}
	if err := decode("monitor_names", &out.MonitorNames); err != nil {
		return err
	}
	if err := decode("status_page_names", &out.StatusPageNames); err != nil {
		return err
	}

	*m = out
	return nil
}

func (m Maintenance) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(m.Extra)+8)
	for key, value := range m.Extra {
		fields[key] = value
	}

	fields["strategy"] = m.Strategy
	if m.ID != nil {
		fields["id"] = m.ID
	}
	if m.Title != nil {
		fields["title"] = m.Title
	}
	if m.Description != nil {
		fields["description"] = m.Description
	}
	if m.Active != nil {
		fields["active"] = m.Active
	}
	if m.Monitors != nil {
		fields["monitors"] = m.Monitors
	}
	if m.StatusPages != nil {
		fields["statusPages"] = m.StatusPages
	}
	if m.MonitorNames != nil {
		fields["monitor_names"] = m.MonitorNames
	}
	if m.StatusPageNames != nil {
		fields["status_page_names"] = m.StatusPageNames
	}

	return json.Marshal(fields)
}

// Clone returns a deep copy via a JSON round-trip.
func (m Maintenance) Clone() Maintenance {
	data, _ := json.Marshal(m)
	var out Maintenance
	_ = json.Unmarshal(data, &out)
	return out
}

// StripLocal removes the AutoKuma-only reference fields before RPC.
func (m *Maintenance) StripLocal() {
	m.MonitorNames = nil
	m.StatusPageNames = nil
}

// MaintenanceList is keyed by the server id rendered as a decimal string.
type MaintenanceList map[string]Maintenance
