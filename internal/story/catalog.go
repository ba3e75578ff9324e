package story

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var ErrNotFound = errors.New("story not found")

// extensions in lookup order.
var extensions = []string{".yaml", ".yml"}

// Catalog lists the story files in one directory.
type Catalog struct {
	dir    string
	logger *slog.Logger
}

func NewCatalog(dir string, logger *slog.Logger) *Catalog {
	return &Catalog{dir: dir, logger: logger}
}

// List returns story names, newest file first. A missing directory yields
// an empty list.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("stories directory does not exist", "dir", c.dir)
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stories dir: %w", err)
	}

	type entry struct {
		name  string
		mtime time.Time
	}
	seen := map[string]int{}
	var found []entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if i, ok := seen[name]; ok {
			if info.ModTime().After(found[i].mtime) {
				found[i].mtime = info.ModTime()
			}
			continue
		}
		seen[name] = len(found)
		found = append(found, entry{name: name, mtime: info.ModTime()})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].mtime.Equal(found[j].mtime) {
			return found[i].name < found[j].name
		}
		return found[i].mtime.After(found[j].mtime)
	})

	names := make([]string, len(found))
	for i, e := range found {
		names[i] = e.name
	}
	return names, nil
}

// Find loads the named story. .yaml is preferred over .yml.
func (c *Catalog) Find(name string) (*Story, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for _, ext := range extensions {
		path := filepath.Join(c.dir, name+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		s, err := Load(path)
		if err != nil {
			return nil, fmt.Errorf("load story %s: %w", name, err)
		}
		s.Name = name
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}
