package extension

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader discovers extensions on the filesystem.
type Loader struct {
	// Search paths for extensions (checked in order)
	paths []string

	// Discovered extensions cache
	discovered map[string]*Info
}

// Info contains discovery information about an extension.
type Info struct {
	Name     string
	Path     string
	Manifest *Manifest
	Error    error
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPaths sets the extension search paths.
func WithPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.paths = paths
	}
}

// NewLoader creates a new extension loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		discovered: make(map[string]*Info),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Paths returns the configured search paths.
func (l *Loader) Paths() []string {
	return l.paths
}

// AddPath adds a search path.
func (l *Loader) AddPath(path string) {
	l.paths = append(l.paths, path)
}

// Discover finds all extensions in the search paths, sorted by name.
// Earlier paths win when two paths provide the same name.
func (l *Loader) Discover() ([]*Info, error) {
	l.discovered = make(map[string]*Info)

	for _, basePath := range l.paths {
		if err := l.discoverInPath(basePath); err != nil {
			// Missing paths are not errors
			continue
		}
	}

	infos := make([]*Info, 0, len(l.discovered))
	for _, info := range l.discovered {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

// discoverInPath finds extensions in a single directory.
func (l *Loader) discoverInPath(basePath string) error {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			// Single-file extensions (name.lua)
			if filepath.Ext(entry.Name()) == ".lua" {
				name := strings.TrimSuffix(entry.Name(), ".lua")
				l.addSingleFile(name, filepath.Join(basePath, entry.Name()))
			}
			continue
		}

		dir := filepath.Join(basePath, entry.Name())
		info := l.inspect(entry.Name(), dir)
		if _, exists := l.discovered[info.Name]; !exists {
			l.discovered[info.Name] = info
		}
	}
	return nil
}

// addSingleFile records a single-file extension.
func (l *Loader) addSingleFile(name, luaPath string) {
	if _, exists := l.discovered[name]; exists {
		return
	}
	manifest := NewManifestMinimal(name, filepath.Dir(luaPath))
	manifest.Main = filepath.Base(luaPath)
	l.discovered[name] = &Info{
		Name:     name,
		Path:     filepath.Dir(luaPath),
		Manifest: manifest,
	}
}

// inspect examines an extension directory.
func (l *Loader) inspect(name, dir string) *Info {
	info := &Info{Name: name, Path: dir}

	manifestPath := filepath.Join(dir, "extension.json")
	if _, err := os.Stat(manifestPath); err == nil {
		manifest, err := LoadManifest(manifestPath)
		if err != nil {
			info.Error = fmt.Errorf("invalid manifest: %w", err)
			return info
		}
		info.Manifest = manifest
		info.Name = manifest.Name // manifest name wins over dir name
		return info
	}

	initPath := filepath.Join(dir, "init.lua")
	if _, err := os.Stat(initPath); err == nil {
		info.Manifest = NewManifestMinimal(name, dir)
		return info
	}

	info.Error = ErrNoEntryPoint
	return info
}

// Find locates an extension by name, searching paths on a cache miss.
func (l *Loader) Find(name string) (*Info, error) {
	if info, ok := l.discovered[name]; ok {
		return info, nil
	}

	for _, basePath := range l.paths {
		dir := filepath.Join(basePath, name)
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			info := l.inspect(name, dir)
			if info.Error == nil {
				l.discovered[name] = info
				return info, nil
			}
		}

		luaPath := filepath.Join(basePath, name+".lua")
		if _, err := os.Stat(luaPath); err == nil {
			l.addSingleFile(name, luaPath)
			return l.discovered[name], nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrExtensionNotFound, name)
}

// Names returns the names of all discovered extensions, sorted.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.discovered))
	for name := range l.discovered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
