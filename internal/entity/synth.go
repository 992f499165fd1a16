package entity

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/autokuma/autokuma/internal/template"
	"github.com/autokuma/autokuma/pkg/kuma"
)

// Bundle is the normalized output of every source adapter: a set of labels
// (prefix already stripped) plus the template context they are rendered
// against.
type Bundle struct {
	SourceKind string
	SourceID   string
	Labels     []Label
	Context    map[string]any
}

// Synthesizer expands snippets, renders templates, and parses grouped labels
// into typed entities.
type Synthesizer struct {
	engine   *template.Engine
	snippets map[string]string
	defaults map[string][]Label
	logger   *zap.Logger
}

// New builds a Synthesizer. defaultSettings is the raw config string of
// "<type-or-*>.<field>: <templated value>" lines.
func New(engine *template.Engine, snippets map[string]string, defaultSettings string, logger *zap.Logger) (*Synthesizer, error) {
	defaults, err := parseDefaultSettings(defaultSettings)
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		engine:   engine,
		snippets: snippets,
		defaults: defaults,
		logger:   logger,
	}, nil
}

func parseDefaultSettings(raw string) (map[string][]Label, error) {
	var entries []Label
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid default_settings line %q", line)
		}
		entries = append(entries, Label{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	return groupByPrefix(entries, "."), nil
}

// Synthesize processes all bundles into the desired entity set, keyed by
// AutoKuma ID. Failures are collected per entity; one broken bundle or label
// never blocks the rest.
func (s *Synthesizer) Synthesize(bundles []Bundle) (map[string]Entity, []error) {
	desired := make(map[string]Entity)
	var errs []error

	for _, bundle := range bundles {
		entities, bundleErrs := s.synthesizeBundle(bundle)
		errs = append(errs, bundleErrs...)
		for id, e := range entities {
			desired[id] = e
		}
	}
	return desired, errs
}

func (s *Synthesizer) synthesizeBundle(bundle Bundle) (map[string]Entity, []error) {
	var errs []error

	labels, snippetErrs := s.expandSnippets(bundle)
	errs = append(errs, snippetErrs...)

	rendered := make([]Label, 0, len(labels))
	for _, label := range labels {
		key, err := s.engine.Render(bundle.SourceID, label.Key, bundle.Context)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		value, err := s.engine.Render(bundle.SourceID, label.Value, bundle.Context)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rendered = append(rendered, Label{Key: key, Value: value})
	}

	entities := make(map[string]Entity)
	for id, group := range groupByPrefix(rendered, ".") {
		for typeTag, settings := range groupByPrefix(group, ".") {
			e, err := s.parseEntity(id, typeTag, settings, bundle.Context)
			if err != nil {
				errs = append(errs, &ParseError{ID: id, Err: err})
				continue
			}
			entities[id] = e
		}
	}
	return entities, errs
}

// expandSnippets replaces "__<name>" invocations (bare or below an id
// segment) with the snippet's rendered lines. Expansion is single-pass: a
// snippet cannot invoke another snippet.
func (s *Synthesizer) expandSnippets(bundle Bundle) ([]Label, []error) {
	var out []Label
	var errs []error

	for _, label := range bundle.Labels {
		idBase, name, isSnippet := splitSnippetKey(label.Key)
		if !isSnippet {
			out = append(out, label)
			continue
		}

		body, known := s.snippets[name]
		if !known {
			s.logger.Warn("snippet not found",
				zap.String("snippet", name),
				zap.String("source", bundle.SourceID),
			)
			continue
		}

		var args []any
		if strings.HasPrefix(name, "!") {
			args = []any{label.Value}
		} else {
			args = parseSnippetArgs(label.Value)
		}

		values := make(map[string]any, len(bundle.Context)+2)
		for key, value := range bundle.Context {
			values[key] = value
		}
		values["args"] = args
		values["id_base"] = idBase

		expanded, err := s.engine.Render(bundle.SourceID, body, values)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, line := range strings.Split(expanded, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			key, value, ok := strings.Cut(line, ": ")
			if !ok {
				s.logger.Warn("invalid snippet line",
					zap.String("snippet", name),
					zap.String("line", line),
				)
				continue
			}
			out = append(out, Label{
				Key:   strings.TrimSpace(key),
				Value: unescapeValue(value),
			})
		}
	}
	return out, errs
}

// splitSnippetKey recognizes "__name" and "<id>.__name" invocation keys.
func splitSnippetKey(key string) (idBase, name string, ok bool) {
	if strings.HasPrefix(key, "__") {
		return "", key[2:], true
	}
	if idx := strings.Index(key, ".__"); idx >= 0 {
		return key[:idx], key[idx+3:], true
	}
	return "", "", false
}

// parseEntity coerces one id's settings into a typed entity, applying
// default_settings for fields the labels did not set.
func (s *Synthesizer) parseEntity(id, typeTag string, settings []Label, context map[string]any) (Entity, error) {
	kind, err := kindForTypeTag(typeTag)
	if err != nil {
		return Entity{}, err
	}

	present := make(map[string]struct{}, len(settings))
	for _, setting := range settings {
		present[setting.Key] = struct{}{}
	}
	for _, scope := range []string{"*", typeTag} {
		for _, dflt := range s.defaults[scope] {
			if _, set := present[dflt.Key]; set {
				continue
			}
			value, err := s.engine.Render(id, dflt.Value, context)
			if err != nil {
				return Entity{}, err
			}
			settings = append(settings, Label{Key: dflt.Key, Value: value})
			present[dflt.Key] = struct{}{}
		}
	}

	nested := nestedSettings(settings)
	nested["type"] = typeTag

	data, err := json.Marshal(nested)
	if err != nil {
		return Entity{}, err
	}
	return decodeEntity(kind, data)
}

// ParseValue coerces an already-structured settings object (from a file or a
// Kubernetes CR) into an entity. The object must carry a "type" field.
func ParseValue(id string, value map[string]any) (Entity, error) {
	typeTag, _ := value["type"].(string)
	if typeTag == "" {
		return Entity{}, &ParseError{ID: id, Err: fmt.Errorf("missing `type`")}
	}
	kind, err := kindForTypeTag(typeTag)
	if err != nil {
		return Entity{}, &ParseError{ID: id, Err: err}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return Entity{}, &ParseError{ID: id, Err: err}
	}
	e, err := decodeEntity(kind, data)
	if err != nil {
		return Entity{}, &ParseError{ID: id, Err: err}
	}
	return e, nil
}

func decodeEntity(kind Kind, data []byte) (Entity, error) {
	e := Entity{Kind: kind}
	switch kind {
	case KindMonitor:
		e.Monitor = new(kuma.Monitor)
		if err := json.Unmarshal(data, e.Monitor); err != nil {
			return Entity{}, err
		}
	case KindTag:
		e.Tag = new(kuma.TagDefinition)
		if err := json.Unmarshal(data, e.Tag); err != nil {
			return Entity{}, err
		}
	case KindNotification:
		e.Notification = new(kuma.Notification)
		if err := json.Unmarshal(data, e.Notification); err != nil {
			return Entity{}, err
		}
	case KindDockerHost:
		e.DockerHost = new(kuma.DockerHost)
		if err := json.Unmarshal(data, e.DockerHost); err != nil {
			return Entity{}, err
		}
	case KindStatusPage:
		e.StatusPage = new(kuma.StatusPage)
		if err := json.Unmarshal(data, e.StatusPage); err != nil {
			return Entity{}, err
		}
	case KindMaintenance:
		e.Maintenance = new(kuma.Maintenance)
		if err := json.Unmarshal(data, e.Maintenance); err != nil {
			return Entity{}, err
		}
	default:
		return Entity{}, fmt.Errorf("unhandled kind %s", kind)
	}
	return e, nil
}
