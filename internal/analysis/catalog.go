package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/phrazzld/codescope-api/internal/task"
)

// reloadDebounce collapses the burst of events editors produce on save.
const reloadDebounce = 250 * time.Millisecond

// Catalog holds the available prompt profiles. It is safe for concurrent use.
type Catalog struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	profiles map[string]*Profile
}

// Ensure Catalog implements task.ProfileCatalog
var _ task.ProfileCatalog = (*Catalog)(nil)

// NewCatalog loads the built-in profiles and, when path is set, the profiles
// file at path.
func NewCatalog(path string, logger *slog.Logger) (*Catalog, error) {
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve prompts file: %w", err)
		}
		path = abs
	}

	profiles, err := loadProfiles(path)
	if err != nil {
		return nil, err
	}
	if _, ok := profiles[task.DefaultPromptProfile]; !ok {
		return nil, fmt.Errorf("profile %q is required", task.DefaultPromptProfile)
	}

	return &Catalog{
		path:     path,
		logger:   logger.With("component", "prompt_catalog"),
		profiles: profiles,
	}, nil
}

// HasProfile implements task.ProfileCatalog.
func (c *Catalog) HasProfile(name string) bool {
	_, ok := c.Profile(name)
	return ok
}

// Profile returns the named profile.
func (c *Catalog) Profile(name string) (*Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[name]
	return p, ok
}

// Names returns the profile names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload re-reads the prompts file. On failure the current profiles stay in use.
func (c *Catalog) Reload() error {
	profiles, err := loadProfiles(c.path)
	if err != nil {
		return err
	}
	if _, ok := profiles[task.DefaultPromptProfile]; !ok {
		return fmt.Errorf("profile %q is required", task.DefaultPromptProfile)
	}

	c.mu.Lock()
	c.profiles = profiles
	c.mu.Unlock()
	return nil
}

// Watch reloads the prompts file whenever it changes until ctx is done.
// It returns immediately when no prompts file is configured.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create prompts watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("failed to watch prompts directory: %w", err)
	}
	c.logger.Info("watching prompts file", "path", c.path)

	reload := make(chan struct{}, 1)
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != c.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				schedule()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("prompts watcher error", "error", err)

		case <-reload:
			if err := c.Reload(); err != nil {
				c.logger.Error("failed to reload prompts file, keeping previous profiles", "error", err)
				continue
			}
			c.logger.Info("reloaded prompts file", "profiles", c.Names())
		}
	}
}
