package cache

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/adapters/clock"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/config" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/kv"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/tally/internal/engine/recheck"
)

// NodeID is the unique identifier for the cache store Graft node.
const NodeID graft.ID = "engine.cache"

func init() {
	graft.Register(graft.Node[*Store]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{kv.NodeID, clock.NodeID, config.SettingsNodeID},
		Run: func(ctx context.Context) (*Store, error) {
			kvStore, err := graft.Dep[ports.StateStore](ctx)
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
			return NewStore(kvStore, clk, recheck.PolicyFromSettings(settings.Recheck), settings.RefreshCooldown), nil
		},
	})
}
