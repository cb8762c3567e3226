package daemon

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/backend"
	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/channel"
	"github.com/matheus3301/omnisync/internal/config"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/logging"
	"github.com/matheus3301/omnisync/internal/metrics"
	"github.com/matheus3301/omnisync/internal/outbox"
	"github.com/matheus3301/omnisync/internal/session"
	"github.com/matheus3301/omnisync/internal/socketio"
	"github.com/matheus3301/omnisync/internal/status"
	"github.com/matheus3301/omnisync/internal/thread"
	"github.com/matheus3301/omnisync/internal/wire"
)

// Params holds the resolved profile configuration passed to the fx modules.
type Params struct {
	Profile    string
	Binary     string // log file name; defaults to omnisyncd
	ConfigPath string // optional override; empty = ~/.omnisync/config.toml
	SocketPath string // optional override for testing; empty = use default
	// FileLogOnly keeps logs off stderr, for the terminal UI.
	FileLogOnly bool
}

// Core provides the sync components shared by the daemon and the terminal
// client: config, logger, metrics, bus, state machine, REST client, event
// channel, outbox and inbox view. It registers no lifecycle hooks.
func Core(p Params) fx.Option {
	return fx.Module("core",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			metrics.New,
			provideBus,
			status.NewMachine,
			provideParser,
			provideBackend,
			provideTransport,
			provideChannel,
			provideOutbox,
			provideInbox,
			provideThreadOpener,
		),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	return config.Resolve(path)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	binary := p.Binary
	if binary == "" {
		binary = "omnisyncd"
	}
	path := session.LogPath(p.Profile, binary)
	if p.FileLogOnly {
		return logging.NewFile(path, p.Profile, cfg.LogLevel)
	}
	return logging.New(path, p.Profile, cfg.LogLevel)
}

func provideBus(m *metrics.Metrics) *bus.Bus {
	b := bus.New()
	b.OnDrop(m.RecordBusDrop)
	return b
}

func provideParser(cfg *config.Config) wire.Parser {
	return wire.Parser{MediaOrigin: cfg.API.MediaOrigin}
}

func provideBackend(cfg *config.Config, parser wire.Parser, logger *zap.Logger) (*backend.Client, error) {
	return backend.New(backend.Config{
		BaseURL:     cfg.API.BaseURL,
		AccessToken: cfg.Auth.AccessToken,
		CompanyID:   cfg.Auth.CompanyID,
		UserID:      cfg.Auth.UserID,
		Timeout:     cfg.API.Timeout.Duration,
		PageSize:    cfg.API.PageSize,
	}, parser, logger.Named("backend"))
}

func provideTransport(cfg *config.Config, logger *zap.Logger) channel.Transport {
	return socketio.New(socketio.Config{
		URL:       cfg.Socket.URL,
		Path:      cfg.Socket.Path,
		EIO:       cfg.Socket.EIO,
		Namespace: cfg.Socket.Namespace,
	}, logger.Named("socketio"))
}

func provideChannel(t channel.Transport, m *status.Machine, cfg *config.Config, logger *zap.Logger, mt *metrics.Metrics) *channel.Channel {
	return channel.New(t, m, channel.Options{
		MaxAttempts:  cfg.Socket.MaxAttempts,
		InitialDelay: cfg.Socket.InitialDelay.Duration,
		MaxDelay:     cfg.Socket.MaxDelay.Duration,
	}, logger.Named("channel"), mt)
}

func provideOutbox(client *backend.Client, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics, cfg *config.Config) *outbox.Outbox {
	return outbox.New(client, b, logger.Named("outbox"), m, cfg.Outbox.Workers)
}

func provideInbox(client *backend.Client, ch *channel.Channel, parser wire.Parser, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *inbox.View {
	return inbox.New(client, ch, parser, b, logger, m)
}

// ThreadOpener builds a thread view over the shared components. Each call
// returns a fresh, unmounted view.
type ThreadOpener func(conv thread.Conversation) *thread.View

func provideThreadOpener(client *backend.Client, ch *channel.Channel, ob *outbox.Outbox, parser wire.Parser, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics, cfg *config.Config) ThreadOpener {
	deps := thread.Deps{
		Backend:     client,
		Source:      ch,
		Outbox:      ob,
		Parser:      parser,
		Bus:         b,
		Logger:      logger,
		Metrics:     m,
		MatchWindow: cfg.Outbox.MatchWindow.Duration,
	}
	return func(conv thread.Conversation) *thread.View {
		return thread.New(deps, conv)
	}
}
