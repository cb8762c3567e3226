package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/channel"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/outbox"
)

// Client returns the fx module for an interactive client: Core plus hooks
// that run the sync components for the lifetime of the app, without the
// profile lock or any listener.
func Client(p Params) fx.Option {
	return fx.Options(
		Core(p),
		fx.Invoke(registerClientLifecycle),
	)
}

// syncParts are the components both lifecycles start and stop.
type syncParts struct {
	fx.In

	Channel *channel.Channel
	Outbox  *outbox.Outbox
	Inbox   *inbox.View
	Logger  *zap.Logger
}

func registerClientLifecycle(lc fx.Lifecycle, s syncParts) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			startSync(ctx, s)
			return nil
		},
		OnStop: func(_ context.Context) error {
			stopSync(s)
			cancel()
			_ = s.Logger.Sync()
			return nil
		},
	})
}

// startSync starts the send workers, connects the channel and mounts the
// inbox in the background.
func startSync(ctx context.Context, s syncParts) {
	s.Outbox.Start(ctx)
	s.Channel.Connect(ctx)
	go func() {
		if err := s.Inbox.Mount(ctx); err != nil {
			s.Logger.Error("initial inbox load failed", zap.Error(err))
		}
	}()
}

// stopSync tears down in reverse: views first so no handler runs against a
// closed outbox.
func stopSync(s syncParts) {
	s.Inbox.Close()
	s.Outbox.Stop()
	s.Channel.Disconnect()
}
