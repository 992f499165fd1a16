package entity

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/autokuma/autokuma/pkg/kuma"
)

// localOnlyFields never reach the server and never participate in the
// field-wise compare.
var localOnlyFields = map[string]struct{}{
	"parent_name":            {},
	"create_paused":          {},
	"notification_name_list": {},
	"tag_names":              {},
	"docker_host_name":       {},
	"monitor_names":          {},
	"status_page_names":      {},
}

// serverOnlyFields are assigned by the server and excluded from the compare.
var serverOnlyFields = map[string]struct{}{
	"id":          {},
	"userId":      {},
	"user_id":     {},
	"active":      {},
	"status":      {},
	"weight":      {},
	"childIds":    {},
	"pathName":    {},
	"maintenance": {},
}

// Merge overlays the desired entity onto the current server-side record:
// fields the labels set win, fields they left unset keep the server value.
// Monitor tag bindings merge per tag id so a desired binding inherits the
// current binding's display fields.
func Merge(current, desired Entity) Entity {
	if current.Kind != desired.Kind {
		return desired
	}

	currentMap := toMap(current)
	desiredMap := toMap(desired)

	merged := make(map[string]any, len(currentMap)+len(desiredMap))
	for key, value := range currentMap {
		merged[key] = value
	}
	for key, value := range desiredMap {
		if value == nil {
			// An explicit null (e.g. parent cleared) overwrites.
			merged[key] = nil
			continue
		}
		merged[key] = value
	}

	if current.Kind == KindMonitor {
		merged["tags"] = mergeTagBindings(currentMap["tags"], desiredMap["tags"])
	}

	return fromMap(current.Kind, merged)
}

func mergeTagBindings(currentRaw, desiredRaw any) any {
	decode := func(raw any) []kuma.Tag {
		if raw == nil {
			return nil
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return nil
		}
		var tags []kuma.Tag
		if json.Unmarshal(data, &tags) != nil {
			return nil
		}
		return tags
	}

	current := decode(currentRaw)
	desired := decode(desiredRaw)

	currentByID := make(map[int]kuma.Tag, len(current))
	for _, tag := range current {
		if tag.TagID != nil {
			currentByID[int(*tag.TagID)] = tag
		}
	}

	out := make([]kuma.Tag, 0, len(desired))
	for _, tag := range desired {
		if tag.TagID != nil {
			if existing, ok := currentByID[int(*tag.TagID)]; ok {
				if tag.Name == nil {
					tag.Name = existing.Name
				}
				if tag.Color == nil {
					tag.Color = existing.Color
				}
				if tag.Value == nil {
					tag.Value = existing.Value
				}
			}
		}
		out = append(out, tag)
	}
	return out
}

// Equal performs the field-wise compare between the current server record
// and the merged desired record, ignoring server-assigned and local-only
// fields, comparing tag bindings as a set, and comparing notification config
// blobs with the server-mirrored attributes masked.
func Equal(current, desired Entity) bool {
	if current.Kind != desired.Kind {
		return false
	}

	if current.Kind == KindNotification {
		if !kuma.ConfigEqual(configOf(current), configOf(desired)) {
			return false
		}
	}

	return reflect.DeepEqual(compareView(current), compareView(desired))
}

func configOf(e Entity) kuma.JSONObject {
	if e.Notification == nil {
		return nil
	}
	return e.Notification.Config
}

// compareView reduces an entity to the normalized map the compare runs on.
func compareView(e Entity) map[string]any {
	view := toMap(e)
	for field := range localOnlyFields {
		delete(view, field)
	}
	for field := range serverOnlyFields {
		delete(view, field)
	}
	delete(view, "config") // notifications: compared separately

	if raw, ok := view["tags"]; ok {
		view["tags"] = tagCompareSet(raw)
	}
	if raw, ok := view["accepted_statuscodes"]; ok {
		view["accepted_statuscodes"] = statusCodeSet(raw)
	}
	for key, value := range view {
		if value == nil {
			delete(view, key)
		}
	}
	return view
}

// tagCompareSet reduces tag bindings to sorted (tag_id, value) pairs; the
// binding value is preserved on round-trip by the server, so it is part of
// the compare.
func tagCompareSet(raw any) []string {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var tags []kuma.Tag
	if json.Unmarshal(data, &tags) != nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		id := -1
		if tag.TagID != nil {
			id = int(*tag.TagID)
		}
		value := ""
		if tag.Value != nil {
			value = *tag.Value
		}
		out = append(out, fmt.Sprintf("%d\x00%s", id, value))
	}
	sort.Strings(out)
	return out
}

// statusCodeSet normalizes the accepted status code list to the expanded
// integer set, so "200-299" equals the explicit enumeration.
func statusCodeSet(raw any) []int {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var codes kuma.StringList
	if json.Unmarshal(data, &codes) != nil {
		return nil
	}
	expanded := kuma.ExpandStatusCodes(codes)
	out := make([]int, 0, len(expanded))
	for code := range expanded {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}

func toMap(e Entity) map[string]any {
	var payload any
	switch e.Kind {
	case KindMonitor:
		payload = e.Monitor
	case KindTag:
		payload = e.Tag
	case KindNotification:
		payload = e.Notification
	case KindDockerHost:
		payload = e.DockerHost
	case KindStatusPage:
		payload = e.StatusPage
	case KindMaintenance:
		payload = e.Maintenance
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var out map[string]any
	if json.Unmarshal(data, &out) != nil {
		return nil
	}
	return out
}

func fromMap(kind Kind, fields map[string]any) Entity {
	data, err := json.Marshal(fields)
	if err != nil {
		return Entity{Kind: kind}
	}
	e, err := decodeEntity(kind, data)
	if err != nil {
		return Entity{Kind: kind}
	}
	return e
}
