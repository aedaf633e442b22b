// Package metadata supplies form definitions to the core service.
//
// Two sources are provided: FileLoader reads definitions from YAML files,
// and QueryLoader reads them from the host platform's form metadata tables
// through an executor. Both satisfy core.MetadataSource.
package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/form"
)

// FileLoader serves form definitions read from a YAML file or a directory
// of YAML files. A file may hold several definitions as separate YAML
// documents.
type FileLoader struct {
	path string

	mu   sync.RWMutex
	defs map[string]*form.Definition
}

// NewFileLoader reads every definition under path.
func NewFileLoader(path string) (*FileLoader, error) {
	l := &FileLoader{path: path}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload rereads the definitions. On error the previous set is kept.
func (l *FileLoader) Reload() error {
	files, err := yamlFiles(l.path)
	if err != nil {
		return err
	}

	defs := make(map[string]*form.Definition)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		parsed, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		for _, def := range parsed {
			if _, dup := defs[def.Form.ID]; dup {
				return fmt.Errorf("%s: form %q defined twice", file, def.Form.ID)
			}
			defs[def.Form.ID] = def
		}
	}

	l.mu.Lock()
	l.defs = defs
	l.mu.Unlock()
	return nil
}

func yamlFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat metadata path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Parse decodes one or more YAML documents, each a form definition. Every
// definition is built once so that unknown data types and bad patterns
// are reported here rather than on first use.
func Parse(data []byte) ([]*form.Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var defs []*form.Definition
	for i := 0; ; i++ {
		var def form.Definition
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if def.Form.ID == "" {
			return nil, fmt.Errorf("document %d: form id is required", i)
		}
		if _, err := def.Build(); err != nil {
			return nil, fmt.Errorf("form %q: %w", def.Form.ID, err)
		}
		defs = append(defs, &def)
	}
	return defs, nil
}

// LoadForm returns the definition of formID.
func (l *FileLoader) LoadForm(_ context.Context, formID string) (*form.Definition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.defs[formID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrFormNotFound, formID)
	}
	return def, nil
}

// FormIDs returns the loaded form ids, sorted.
func (l *FileLoader) FormIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.defs))
	for id := range l.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Domains returns every domain referenced by the loaded forms, their child
// forms and their link targets, sorted.
func (l *FileLoader) Domains() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool)
	for _, def := range l.defs {
		seen[def.Form.Domain] = true
		collectDomains(def.Fields, seen)
	}
	delete(seen, "")
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func collectDomains(fields []form.FieldMetadata, seen map[string]bool) {
	for _, f := range fields {
		seen[f.LinkDomain] = true
		if f.Child != nil {
			seen[f.Child.Form.Domain] = true
			collectDomains(f.Child.Fields, seen)
		}
	}
}
