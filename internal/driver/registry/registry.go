// Package registry maintains the set of known instrument drivers: it loads
// driver source files from a directory, extracts their metadata, and serves
// lookup queries to the CLI and the web layer. Extraction results are cached
// by source hash so unchanged files are never re-parsed.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/driver/metadata"
)

// Entry is one loaded driver file
type Entry struct {
	// File is the absolute path of the driver source
	File string
	// Hash is the hex SHA-256 of the source text the entry was built from
	Hash     string
	Drivers  []*metadata.DriverMetadata
	Warnings []metadata.Warning
}

// Registry is a thread-safe driver catalog
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry                   // file path -> entry
	byName  map[string]*metadata.DriverMetadata // driver class name -> metadata
	logger  *zap.Logger
}

// New creates an empty registry
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*Entry),
		byName:  make(map[string]*metadata.DriverMetadata),
		logger:  logger,
	}
}

// LoadDir loads every *.py file under dir (non-recursive). Files that fail
// to parse are skipped with a logged error; the rest of the directory still
// loads.
func (r *Registry) LoadDir(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.py"))
	if err != nil {
		return fmt.Errorf("scan driver directory %s: %w", dir, err)
	}
	sort.Strings(matches)

	var loaded int
	for _, file := range matches {
		if err := r.LoadFile(file); err != nil {
			r.logger.Error("driver file skipped", zap.String("file", file), zap.Error(err))
			continue
		}
		loaded++
	}
	r.logger.Info("driver directory loaded",
		zap.String("dir", dir),
		zap.Int("files", loaded),
		zap.Int("skipped", len(matches)-loaded))
	return nil
}

// LoadFile loads or reloads one driver file. When the file's content hash
// matches the cached entry, the cached metadata is kept untouched.
func (r *Registry) LoadFile(file string) error {
	source, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read driver %s: %w", file, err)
	}

	sum := sha256.Sum256(source)
	hash := hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[file]; ok && existing.Hash == hash {
		r.logger.Debug("driver unchanged", zap.String("file", file))
		return nil
	}

	ex, err := metadata.ExtractSource(string(source))
	if err != nil {
		return err
	}
	if len(ex.Drivers) == 0 {
		return fmt.Errorf("driver %s declares no instrument classes", file)
	}
	for _, w := range ex.Warnings {
		r.logger.Warn("driver extraction warning",
			zap.String("file", file),
			zap.String("detail", w.String()))
	}

	r.removeLocked(file)
	entry := &Entry{File: file, Hash: hash, Drivers: ex.Drivers, Warnings: ex.Warnings}
	r.entries[file] = entry
	for _, d := range ex.Drivers {
		if prev, ok := r.byName[d.Name]; ok {
			r.logger.Warn("driver name collision, later file wins",
				zap.String("driver", d.Name),
				zap.String("file", file),
				zap.String("previous", fileOf(r.entries, prev)))
		}
		r.byName[d.Name] = d
	}

	r.logger.Info("driver loaded",
		zap.String("file", file),
		zap.Int("instruments", len(ex.Drivers)),
		zap.Int("warnings", len(ex.Warnings)))
	return nil
}

// Remove drops a driver file and its metadata from the registry. Used by
// the watcher when a file is deleted.
func (r *Registry) Remove(file string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(file)
}

func (r *Registry) removeLocked(file string) {
	entry, ok := r.entries[file]
	if !ok {
		return
	}
	for _, d := range entry.Drivers {
		if r.byName[d.Name] == d {
			delete(r.byName, d.Name)
		}
	}
	delete(r.entries, file)
}

// Driver returns the metadata for a driver class name, or nil. Lookup is
// case-insensitive when no exact match exists.
func (r *Registry) Driver(name string) *metadata.DriverMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.byName[name]; ok {
		return d
	}
	for n, d := range r.byName {
		if strings.EqualFold(n, name) {
			return d
		}
	}
	return nil
}

// Names returns all registered driver class names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Entries returns the loaded file entries, sorted by path
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].File < entries[j].File })
	return entries
}

// Len returns the number of registered drivers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func fileOf(entries map[string]*Entry, d *metadata.DriverMetadata) string {
	for file, e := range entries {
		for _, candidate := range e.Drivers {
			if candidate == d {
				return file
			}
		}
	}
	return ""
}
