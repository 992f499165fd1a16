// Package source provides the label-bundle adapters: docker containers and
// swarm services, static files on disk, and Kubernetes custom resources.
// Every adapter normalizes its objects into entity.Bundle values and nudges
// a shared notification channel when its world changes, so the reconciler
// can react without polling.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/autokuma/autokuma/internal/entity"
)

// Source is one provider of label bundles.
type Source interface {
	// Name identifies the adapter in logs.
	Name() string
	// Start launches background watchers that nudge the notify channel.
	// It returns once the watchers are running.
	Start(ctx context.Context) error
	// Bundles enumerates the current desired state of this source.
	Bundles(ctx context.Context) ([]entity.Bundle, error)
	// Close releases watcher resources.
	Close() error
}

// Nudge performs a non-blocking send on the change-notification channel.
// A full channel means a tick is already pending; the notification coalesces.
func Nudge(notify chan<- struct{}) {
	select {
	case notify <- struct{}{}:
	default:
	}
}

// kumaLabels extracts the prefixed labels from a raw label map, stripping
// the prefix, and injects "__!<key>" invocations for labels matched by a
// !-snippet. Output order is deterministic.
func kumaLabels(labels map[string]string, prefix string, snippets map[string]string) []entity.Label {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []entity.Label
	dotted := prefix + "."
	for _, key := range keys {
		switch {
		case strings.HasPrefix(key, dotted):
			out = append(out, entity.Label{Key: strings.TrimPrefix(key, dotted), Value: labels[key]})
		default:
			if _, ok := snippets["!"+key]; ok {
				out = append(out, entity.Label{Key: "__!" + key, Value: labels[key]})
			}
		}
	}
	return out
}

// hasKumaLabels reports whether any label is relevant to autokuma.
func hasKumaLabels(labels map[string]string, prefix string, snippets map[string]string) bool {
	dotted := prefix + "."
	for key := range labels {
		if strings.HasPrefix(key, dotted) {
			return true
		}
		if _, ok := snippets["!"+key]; ok {
			return true
		}
	}
	return false
}

// flattenSettings converts a structured settings object (from a file or a
// CR) into the dotted label form under "<id>.<type>.", so structured sources
// share the label pipeline — template rendering and defaults included. The
// "type" field becomes the type segment; scalars stringify, structured
// leaves JSON-encode.
func flattenSettings(id string, value map[string]any) ([]entity.Label, error) {
	typeTag, _ := value["type"].(string)
	if typeTag == "" {
		return nil, fmt.Errorf("%s is missing `type`", id)
	}

	var out []entity.Label
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		keys := make([]string, 0, len(node))
		for key := range node {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if prefix == "" && key == "type" {
				continue
			}
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			switch child := node[key].(type) {
			case map[string]any:
				walk(path, child)
			case string:
				out = append(out, entity.Label{Key: path, Value: child})
			default:
				encoded, err := json.Marshal(child)
				if err != nil {
					continue
				}
				out = append(out, entity.Label{Key: path, Value: string(encoded)})
			}
		}
	}
	walk("", value)

	base := id + "." + typeTag + "."
	for i := range out {
		out[i].Key = base + out[i].Key
	}
	return out, nil
}
