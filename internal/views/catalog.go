package views

import (
	"errors"
	"io/fs"
	"log/slog"
	"sync/atomic"
)

// Catalog serves the current definitions to readers while a refresh may
// replace them concurrently.
type Catalog struct {
	path string
	cur  atomic.Pointer[Definitions]
}

func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Path returns the artifact location.
func (c *Catalog) Path() string {
	return c.path
}

// Current returns the latest definitions: the last Set value, else the
// file on disk, else the built-in defaults.
func (c *Catalog) Current() *Definitions {
	if d := c.cur.Load(); d != nil {
		return d
	}

	d, err := Load(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load view definitions, using defaults", "path", c.path, "error", err)
		}
		return Default()
	}
	c.cur.CompareAndSwap(nil, d)
	return c.cur.Load()
}

// Set replaces the served definitions.
func (c *Catalog) Set(d *Definitions) {
	if d != nil {
		c.cur.Store(d)
	}
}
