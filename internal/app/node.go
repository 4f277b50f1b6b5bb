package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/tally/internal/adapters/config"  //nolint:depguard // Wired in app layer
	"go.trai.ch/tally/internal/adapters/kv"      //nolint:depguard // Wired in app layer
	"go.trai.ch/tally/internal/adapters/logger"  //nolint:depguard // Wired in app layer
	"go.trai.ch/tally/internal/adapters/watcher" //nolint:depguard // Wired in app layer
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/tally/internal/engine/cache"
	"go.trai.ch/tally/internal/engine/challenge"
	"go.trai.ch/tally/internal/engine/queue"
	"go.trai.ch/tally/internal/engine/ratelimit"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.SettingsNodeID,
			cache.NodeID,
			ratelimit.NodeID,
			challenge.NodeID,
			queue.NodeID,
			kv.NodeID,
			watcher.NodeID,
			logger.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			config.SettingsNodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	settings, err := graft.Dep[domain.Settings](ctx)
	if err != nil {
		return nil, err
	}
	store, err := graft.Dep[*cache.Store](ctx)
	if err != nil {
		return nil, err
	}
	limiter, err := graft.Dep[*ratelimit.Limiter](ctx)
	if err != nil {
		return nil, err
	}
	gate, err := graft.Dep[*challenge.Gate](ctx)
	if err != nil {
		return nil, err
	}
	q, err := graft.Dep[*queue.Queue](ctx)
	if err != nil {
		return nil, err
	}
	kvStore, err := graft.Dep[ports.StateStore](ctx)
	if err != nil {
		return nil, err
	}
	w, err := graft.Dep[ports.ConfigWatcher](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	return New(settings, store, limiter, gate, q, kvStore, w, log), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	a, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	settings, err := graft.Dep[domain.Settings](ctx)
	if err != nil {
		return nil, err
	}
	return &Components{App: a, Logger: log, Settings: settings}, nil
}
