// Package template renders templated label values and snippets. It wraps
// pongo2 (a Django-style engine: variables, filters including slugify,
// conditionals, loops, and verbatim blocks) with a sandboxed context: no file
// includes, no clock, and environment access gated by configuration.
package template

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// pongo2 core has no slugify filter; this one lowercases the input and joins
// its ASCII letter and digit runs with "-".
var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

func init() {
	if !pongo2.FilterExists("slugify") {
		_ = pongo2.RegisterFilter("slugify", filterSlugify)
	}
}

func filterSlugify(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(in.String()), "-")
	return pongo2.AsValue(strings.Trim(slug, "-")), nil
}

// envPrefix guards template access to the process environment: unless
// insecure access is enabled, only variables carrying this prefix are
// exposed, with the prefix stripped.
const envPrefix = "AUTOKUMA__ENV__"

// bannedTags would break determinism or reach outside the sandbox.
var bannedTags = []string{"now", "ssi", "include", "extends", "import"}

// bannedFilters introduce nondeterminism.
var bannedFilters = []string{"random"}

// Error is a template failure, carrying the failing source and the bundle it
// belongs to so one broken label never aborts the whole run.
type Error struct {
	BundleID string
	Source   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("template error in %q (bundle %s): %v", e.Source, e.BundleID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Engine is a sandboxed template renderer. It is safe for concurrent use.
type Engine struct {
	set *pongo2.TemplateSet
	env map[string]string
}

// New builds an Engine. insecureEnvAccess exposes the full process
// environment to templates; the default exposes only AUTOKUMA__ENV__*.
func New(insecureEnvAccess bool) (*Engine, error) {
	loader, err := pongo2.NewLocalFileSystemLoader("")
	if err != nil {
		return nil, fmt.Errorf("creating template loader: %w", err)
	}
	set := pongo2.NewSet("autokuma", loader)
	for _, tag := range bannedTags {
		if err := set.BanTag(tag); err != nil {
			return nil, fmt.Errorf("banning template tag %s: %w", tag, err)
		}
	}
	for _, filter := range bannedFilters {
		if err := set.BanFilter(filter); err != nil {
			return nil, fmt.Errorf("banning template filter %s: %w", filter, err)
		}
	}

	env := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if insecureEnvAccess {
			env[key] = value
			continue
		}
		if stripped, found := strings.CutPrefix(key, envPrefix); found {
			env[stripped] = value
		}
	}

	return &Engine{set: set, env: env}, nil
}

// Render evaluates src against values. The env map is always present under
// "env"; values must not shadow it.
func (e *Engine) Render(bundleID, src string, values map[string]any) (string, error) {
	// Fast path: the vast majority of label values carry no template syntax.
	if !strings.Contains(src, "{{") && !strings.Contains(src, "{%") && !strings.Contains(src, "{#") {
		return src, nil
	}

	tpl, err := e.set.FromString(src)
	if err != nil {
		return "", &Error{BundleID: bundleID, Source: src, Err: err}
	}

	ctx := make(pongo2.Context, len(values)+1)
	for key, value := range values {
		ctx[key] = value
	}
	ctx["env"] = e.env

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", &Error{BundleID: bundleID, Source: src, Err: err}
	}
	return out, nil
}
