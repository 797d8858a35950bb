package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-voiceid/internal/bus"
	"github.com/loqalabs/loqa-voiceid/internal/config"
	"github.com/loqalabs/loqa-voiceid/internal/engine"
	"github.com/loqalabs/loqa-voiceid/internal/eventstore"
	"github.com/loqalabs/loqa-voiceid/internal/natsserver"
	"github.com/loqalabs/loqa-voiceid/internal/profile"
	"github.com/loqalabs/loqa-voiceid/internal/voiceid"
	"github.com/nats-io/nats.go"
)

// Components is everything a Manager needs, built from one Config.
type Components struct {
	Embedded *natsserver.EmbeddedServer
	Bus      *bus.Client
	History  *eventstore.Store
	Profiles profile.Store
	Engine   engine.Factory
	Manager  *voiceid.Manager
}

// BuildOptions tunes Build. WithBus forces a bus connection even when the
// profile backend does not need one.
type BuildOptions struct {
	WithBus bool
}

// Build wires the components selected by cfg. On error everything already
// started is closed again.
func Build(ctx context.Context, cfg config.Config, opts BuildOptions, logger *slog.Logger) (c *Components, err error) {
	c = &Components{}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	if opts.WithBus || cfg.Profiles.Backend == "nats" {
		busCfg := cfg.Bus
		c.Embedded, err = natsserver.Start(busCfg, logger)
		if err != nil {
			return c, err
		}
		if c.Embedded != nil {
			busCfg.Servers = []string{c.Embedded.ClientURL()}
		}
		c.Bus, err = bus.Connect(ctx, busCfg, cfg.RuntimeName, logger)
		if err != nil {
			return c, err
		}
	}

	c.History, err = eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return c, fmt.Errorf("open run history: %w", err)
	}

	c.Profiles, err = profile.Open(ctx, cfg.Profiles, c.jetStream(), logger)
	if err != nil {
		return c, fmt.Errorf("open profile store: %w", err)
	}

	c.Engine, err = engine.New(cfg.Engine)
	if err != nil {
		return c, fmt.Errorf("create engine: %w", err)
	}

	c.Manager, err = voiceid.NewManager(c.Engine, c.Profiles, c.History, cfg.Samples.Directory, logger)
	if err != nil {
		return c, fmt.Errorf("create manager: %w", err)
	}
	return c, nil
}

// Close releases components in reverse start order.
func (c *Components) Close() {
	if c == nil {
		return
	}
	if c.Profiles != nil {
		_ = c.Profiles.Close()
	}
	if c.History != nil {
		_ = c.History.Close()
	}
	if c.Bus != nil {
		c.Bus.Close()
	}
	c.Embedded.Shutdown()
}

// Prune applies run history retention.
func (c *Components) Prune(ctx context.Context) error {
	return c.History.Prune(ctx)
}

func (c *Components) jetStream() nats.JetStreamContext {
	if c.Bus == nil {
		return nil
	}
	return c.Bus.JetStream()
}
