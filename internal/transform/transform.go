// Package transform defines the text transformation capability used by
// workers and the engines that provide it.
//
// An Engine compiles transformer source (a Lua script, a rule file, a command
// line) into a Transformer. A Transformer maps one file's path and contents
// to an Output. Transformers are opaque to the rest of the system and must be
// safe for concurrent use.
package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrUnknownEngine is returned when an engine selector has no registered engine.
var ErrUnknownEngine = errors.New("unknown transform engine")

// File is a file created by a transform.
type File struct {
	Path string
	Data string
}

// Output is the result of transforming one file.
//
// Text is the new contents. Unchanged reports that the transform made no
// decision about the contents (Text is then ignored). Delete removes the
// file. RenameTo moves it. Created lists additional files to create.
type Output struct {
	Text      string
	Unchanged bool
	Delete    bool
	RenameTo  string
	Created   []File
}

// NoChange is the output of a transform that leaves a file alone.
func NoChange() Output {
	return Output{Unchanged: true}
}

// Rewrite is the output of a transform that replaces a file's contents.
func Rewrite(text string) Output {
	return Output{Text: text}
}

// Transformer maps a file's path and contents to an Output.
type Transformer interface {
	Transform(ctx context.Context, path, source string) (Output, error)
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc func(ctx context.Context, path, source string) (Output, error)

func (f TransformerFunc) Transform(ctx context.Context, path, source string) (Output, error) {
	return f(ctx, path, source)
}

// Engine compiles transformer source into a Transformer.
type Engine interface {
	Name() string
	Compile(source string) (Transformer, error)
}

// Registry maps engine selectors to engines.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry creates a registry holding the given engines.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine)}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in engines.
func DefaultRegistry() *Registry {
	r := NewRegistry(LuaEngine{}, ReplaceEngine{}, ExecEngine{})
	r.Register(RecipeEngine{Registry: r})
	return r
}

// Register adds or replaces an engine under its name.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
}

// Resolve returns the engine registered under name.
func (r *Registry) Resolve(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownEngine, name, r.namesLocked())
	}
	return e, nil
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile resolves the engine and compiles source with it.
func (r *Registry) Compile(engine, source string) (Transformer, error) {
	e, err := r.Resolve(engine)
	if err != nil {
		return nil, err
	}
	t, err := e.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s transformer: %w", engine, err)
	}
	return t, nil
}

// Cache compiles each (engine, source) pair once and shares the result.
// Concurrent requests for the same pair wait for a single compilation.
type Cache struct {
	registry *Registry
	group    singleflight.Group

	mu       sync.RWMutex
	compiled map[string]Transformer
}

// NewCache creates a compile cache backed by registry.
func NewCache(registry *Registry) *Cache {
	return &Cache{
		registry: registry,
		compiled: make(map[string]Transformer),
	}
}

// Get returns the compiled transformer for engine and source.
// Compilation errors are not cached.
func (c *Cache) Get(engine, source string) (Transformer, error) {
	key := cacheKey(engine, source)

	c.mu.RLock()
	t, ok := c.compiled[key]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		t, err := c.registry.Compile(engine, source)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.compiled[key] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Transformer), nil
}

func cacheKey(engine, source string) string {
	sum := sha256.Sum256([]byte(source))
	return engine + ":" + hex.EncodeToString(sum[:])
}

func sortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
