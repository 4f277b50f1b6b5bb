package ports

import (
	"context"

	"go.trai.ch/tally/internal/core/domain"
)

// ConfigLoader defines the interface for loading the runtime settings.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the settings from path. A missing file yields the defaults.
	Load(path string) (domain.Settings, error)
}

// ConfigWatcher reports settings changes on disk.
type ConfigWatcher interface {
	// Watch blocks until ctx is done, calling onChange with every reloaded Settings.
	Watch(ctx context.Context, path string, onChange func(domain.Settings)) error
}
