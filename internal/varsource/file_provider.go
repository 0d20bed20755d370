package varsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileProvider reads variables from a flat YAML mapping (a secrets
// file such as .hsm/secrets.yaml). The file is parsed once, on the
// first lookup, so a missing optional file only fails when something
// actually needs a value from it.
type FileProvider struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

// NewFileProvider builds a provider for path, resolved against baseDir
// when relative.
func NewFileProvider(path, baseDir string) *FileProvider {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return &FileProvider{path: path}
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) Get(_ context.Context, name string) (string, bool, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[name]
	return v, ok, nil
}

func (f *FileProvider) load() {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		f.err = fmt.Errorf("read secrets file: %w", err)
		return
	}
	var values map[string]string
	if err := yaml.Unmarshal(raw, &values); err != nil {
		f.err = fmt.Errorf("parse secrets file %s: %w", f.path, err)
		return
	}
	f.values = values
}
