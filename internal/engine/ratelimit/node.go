package ratelimit

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/adapters/clock"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/config" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/kv"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/logger" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/notify" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
)

// NodeID is the unique identifier for the limiter Graft node.
const NodeID graft.ID = "engine.ratelimit"

func init() {
	graft.Register(graft.Node[*Limiter]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{kv.NodeID, clock.NodeID, config.SettingsNodeID, logger.NodeID, notify.NodeID},
		Run: func(ctx context.Context) (*Limiter, error) {
			store, err := graft.Dep[ports.StateStore](ctx)
			if err != nil {
				return nil, err
			}
			clk, err := graft.Dep[clockwork.Clock](ctx)
			if err != nil {
				return nil, err
			}
			settings, err := graft.Dep[domain.Settings](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			notifier, err := graft.Dep[ports.Notifier](ctx)
			if err != nil {
				return nil, err
			}
			return New(store, clk, settings.RateLimit, log, notifier), nil
		},
	})
}
