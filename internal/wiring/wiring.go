// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/tally/internal/adapters/arca"
	_ "go.trai.ch/tally/internal/adapters/clock"
	_ "go.trai.ch/tally/internal/adapters/config"
	_ "go.trai.ch/tally/internal/adapters/kv"
	_ "go.trai.ch/tally/internal/adapters/logger"
	_ "go.trai.ch/tally/internal/adapters/notify"
	_ "go.trai.ch/tally/internal/adapters/telemetry"
	_ "go.trai.ch/tally/internal/adapters/watcher"
	// Register app and engine nodes.
	_ "go.trai.ch/tally/internal/app"
	_ "go.trai.ch/tally/internal/engine/cache"
	_ "go.trai.ch/tally/internal/engine/challenge"
	_ "go.trai.ch/tally/internal/engine/queue"
	_ "go.trai.ch/tally/internal/engine/ratelimit"
)
