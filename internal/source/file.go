package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/autokuma/autokuma/internal/config"
	"github.com/autokuma/autokuma/internal/entity"
)

// FileSource scans a directory tree of static entity definitions. Supported
// formats: JSON, YAML, TOML (structured objects or arrays of objects) and
// raw ".labels" files of "key: value" lines. Hidden files and unknown
// extensions are skipped silently.
type FileSource struct {
	root           string
	followSymlinks bool
	notify         chan<- struct{}
	logger         *zap.Logger

	watcher *fsnotify.Watcher
}

// NewFileSource builds the file adapter rooted at the configured
// static_monitors directory.
func NewFileSource(cfg *config.Config, notify chan<- struct{}, logger *zap.Logger) *FileSource {
	return &FileSource{
		root:           cfg.StaticMonitorDir(),
		followSymlinks: cfg.Files.FollowSymlinks,
		notify:         notify,
		logger:         logger,
	}
}

func (f *FileSource) Name() string { return "files" }

// Start launches the fsnotify watcher over the tree. A missing root is not
// an error; the directory may appear later, caught by the periodic resync.
func (f *FileSource) Start(ctx context.Context) error {
	if f.root == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	f.watcher = watcher

	f.addWatchesRecursive(f.root)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// New directories need their own watch before their content
				// produces events.
				if event.Op.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						f.addWatchesRecursive(event.Name)
					}
				}
				Nudge(f.notify)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("file watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (f *FileSource) addWatchesRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := f.watcher.Add(path); err != nil {
				f.logger.Debug("cannot watch directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
}

func (f *FileSource) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

// Bundles walks the tree and parses every recognized file.
func (f *FileSource) Bundles(ctx context.Context) ([]entity.Bundle, error) {
	if f.root == "" {
		return nil, nil
	}
	if info, err := os.Stat(f.root); err != nil || !info.IsDir() {
		return nil, nil
	}

	var bundles []entity.Bundle
	err := f.walk(f.root, 0, func(path string) {
		fileBundles, err := f.bundlesFromFile(path)
		if err != nil {
			f.logger.Warn("skipping unparseable static monitor file",
				zap.String("path", path),
				zap.Error(err),
			)
			return
		}
		bundles = append(bundles, fileBundles...)
	})
	if err != nil {
		return nil, err
	}
	return bundles, nil
}

// walk recurses the tree. Symlinked directories are only followed when
// enabled, with a depth bound standing in for cycle detection.
func (f *FileSource) walk(dir string, depth int, visit func(path string)) error {
	if depth > 32 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading static monitor directory: %w", err)
	}

	for _, dirEntry := range entries {
		name := dirEntry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		if dirEntry.Type()&os.ModeSymlink != 0 {
			if !f.followSymlinks {
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if err := f.walk(path, depth+1, visit); err != nil {
					return err
				}
				continue
			}
			visit(path)
			continue
		}

		if dirEntry.IsDir() {
			if err := f.walk(path, depth+1, visit); err != nil {
				return err
			}
			continue
		}
		visit(path)
	}
	return nil
}

// fileStem is the file's identity: its path relative to the root, slashes
// preserved, extension dropped.
func (f *FileSource) fileStem(path string) string {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

func (f *FileSource) bundlesFromFile(path string) ([]entity.Bundle, error) {
	stem := f.fileStem(path)

	var decode func(data []byte, out any) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		decode = json.Unmarshal
	case ".yaml", ".yml":
		decode = yaml.Unmarshal
	case ".toml":
		decode = toml.Unmarshal
	case ".labels":
		return f.bundleFromLabelFile(path, stem)
	default:
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var value any
	if err := decode(data, &value); err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case map[string]any:
		labels, err := flattenSettings(stem, v)
		if err != nil {
			return nil, err
		}
		return []entity.Bundle{{
			SourceKind: f.Name(),
			SourceID:   path,
			Labels:     labels,
			Context:    map[string]any{},
		}}, nil
	case []any:
		var bundles []entity.Bundle
		for i, element := range v {
			object, ok := element.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d is not an object", i)
			}
			id := fmt.Sprintf("%s[%d]", stem, i)
			labels, err := flattenSettings(id, object)
			if err != nil {
				return nil, err
			}
			bundles = append(bundles, entity.Bundle{
				SourceKind: f.Name(),
				SourceID:   fmt.Sprintf("%s[%d]", path, i),
				Labels:     labels,
				Context:    map[string]any{"file_index": i},
			})
		}
		return bundles, nil
	default:
		return nil, fmt.Errorf("expected an object or an array, got %T", value)
	}
}

// bundleFromLabelFile reads a raw label file: one "key: value" pair per
// line, keys already in the full "<id>.<type>.<field>" form.
func (f *FileSource) bundleFromLabelFile(path, stem string) ([]entity.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var labels []entity.Label
	for lineNo, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected `key: value`", lineNo+1)
		}
		labels = append(labels, entity.Label{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}

	return []entity.Bundle{{
		SourceKind: f.Name(),
		SourceID:   path,
		Labels:     labels,
		Context:    map[string]any{},
	}}, nil
}
