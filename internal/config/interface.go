package config

import "context"

// Loader is the interface for a format-specific pipeline declaration loader.
type Loader interface {
	// Load reads a pipeline declaration from the given path (a file or a
	// directory of declaration files) and translates it into the
	// format-agnostic model.
	Load(ctx context.Context, path string) (*Model, error)
}
