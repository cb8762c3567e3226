// Package daemon composes the sync components into the omnisyncd process:
// profile lock, event channel, inbox view, send workers, the local gRPC
// server and the metrics listener.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/omnisync/internal/api"
	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/channel"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/lock"
	"github.com/matheus3301/omnisync/internal/outbox"
	"github.com/matheus3301/omnisync/internal/session"
	"github.com/matheus3301/omnisync/internal/status"
)

// Module returns the fx module for the daemon, composing Core with the
// daemon-only providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Options(
		Core(p),
		fx.Module("daemon",
			fx.Provide(
				provideLock,
				provideSyncService,
				NewServer,
				NewMetricsServer,
			),
			fx.Invoke(registerLifecycle),
		),
	)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideSyncService(p Params, m *status.Machine, in *inbox.View, b *bus.Bus) *api.SyncService {
	return api.NewSyncService(p.Profile, m, in, b)
}

// Components groups what the daemon lifecycle hooks drive.
type Components struct {
	fx.In

	Server  *Server
	Metrics *MetricsServer
	Lock    *lock.Lock
	Channel *channel.Channel
	Outbox  *outbox.Outbox
	Inbox   *inbox.View
	Bus     *bus.Bus
	Logger  *zap.Logger
}

func (c Components) sync() syncParts {
	return syncParts{Channel: c.Channel, Outbox: c.Outbox, Inbox: c.Inbox, Logger: c.Logger}
}

func registerLifecycle(lc fx.Lifecycle, c Components) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			stateCh, unsubState := c.Bus.Subscribe(bus.KindChannelState, 64)
			inboxCh, unsubInbox := c.Bus.Subscribe(bus.KindInboxChanged, 16)
			go func() {
				defer close(done)
				defer unsubState()
				defer unsubInbox()
				watch(ctx, c, stateCh, inboxCh)
			}()

			go func() {
				if err := c.Server.Start(); err != nil {
					c.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			c.Metrics.Start()
			startSync(ctx, c.sync())
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			stopSync(c.sync())
			cancel()
			<-done
			c.Server.Stop(stopCtx)
			c.Metrics.Stop(stopCtx)
			if err := c.Lock.Release(); err != nil {
				c.Logger.Warn("error releasing lock", zap.Error(err))
			}
			c.Logger.Info("daemon stopped")
			_ = c.Logger.Sync()
			return nil
		},
	})
}

// watch mirrors channel state onto the health service and logs inbox
// changes until ctx ends.
func watch(ctx context.Context, c Components, stateCh, inboxCh <-chan bus.Event) {
	for {
		select {
		case evt := <-stateCh:
			change, ok := evt.Payload.(status.StatusChange)
			if !ok {
				continue
			}
			c.Server.SetChannelState(change.To)
			c.Logger.Info("channel state changed",
				zap.String("from", string(change.From)),
				zap.String("state", string(change.To)),
			)
		case evt := <-inboxCh:
			if snap, ok := evt.Payload.(inbox.Snapshot); ok {
				c.Logger.Debug("inbox changed",
					zap.Int("conversations", len(snap.Summaries)),
					zap.Int("unread", snap.Unread),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}
