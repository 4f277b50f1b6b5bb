package challenge

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/adapters/clock"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/config" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/logger" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/adapters/notify" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
)

// NodeID is the unique identifier for the challenge gate Graft node.
const NodeID graft.ID = "engine.challenge"

func init() {
	graft.Register(graft.Node[*Gate]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{clock.NodeID, config.SettingsNodeID, notify.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (*Gate, error) {
			clk, err := graft.Dep[clockwork.Clock](ctx)
			if err != nil {
				return nil, err
			}
			settings, err := graft.Dep[domain.Settings](ctx)
			if err != nil {
				return nil, err
			}
			notifier, err := graft.Dep[ports.Notifier](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return New(clk, settings.Challenge, notifier, log), nil
		},
	})
}
