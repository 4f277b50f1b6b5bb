package queue

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/adapters/arca"      //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/clock"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/config"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/tally/internal/engine/cache"
	"go.trai.ch/tally/internal/engine/challenge"
	"go.trai.ch/tally/internal/engine/ratelimit"
)

// NodeID is the unique identifier for the fetch queue Graft node.
const NodeID graft.ID = "engine.queue"

func init() {
	graft.Register(graft.Node[*Queue]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			cache.NodeID,
			ratelimit.NodeID,
			challenge.NodeID,
			arca.NodeID,
			clock.NodeID,
			config.SettingsNodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
		},
		Run: func(ctx context.Context) (*Queue, error) {
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
			provider, err := graft.Dep[ports.MeasurementProvider](ctx)
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
			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}
			return New(store, limiter, gate, provider, clk, log, tracer, settings.Concurrency), nil
		},
	})
}
