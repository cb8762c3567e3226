package api

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/omnisync/internal/bus"
	"github.com/matheus3301/omnisync/internal/crm"
	"github.com/matheus3301/omnisync/internal/inbox"
	"github.com/matheus3301/omnisync/internal/status"
)

// Inbox is the read side of the conversation list.
type Inbox interface {
	Filtered(f inbox.Filter) []crm.Summary
	Loading() bool
}

// SyncService implements SyncServiceServer over the daemon's components.
type SyncService struct {
	profile   string
	startedAt time.Time
	machine   *status.Machine
	inbox     Inbox
	bus       *bus.Bus
}

// NewSyncService creates a new sync service.
func NewSyncService(profile string, machine *status.Machine, in Inbox, b *bus.Bus) *SyncService {
	return &SyncService{
		profile:   profile,
		startedAt: time.Now(),
		machine:   machine,
		inbox:     in,
		bus:       b,
	}
}

func (s *SyncService) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	list := s.inbox.Filtered(inbox.Filter{})
	unread := 0
	for _, c := range list {
		unread += c.UnreadCount
	}
	return structpb.NewStruct(map[string]any{
		"profile":       s.profile,
		"state":         string(s.machine.Current()),
		"state_since":   s.machine.Since().UTC().Format(time.RFC3339),
		"uptime_ms":     time.Since(s.startedAt).Milliseconds(),
		"loading":       s.inbox.Loading(),
		"conversations": len(list),
		"unread":        unread,
		"bus_dropped":   float64(s.bus.Dropped()),
	})
}

func (s *SyncService) ListConversations(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := inbox.Filter{}
	if req != nil {
		fields := req.GetFields()
		f.Query = fields["query"].GetStringValue()
		if p := crm.Platform(strings.ToLower(fields["platform"].GetStringValue())); p != "" {
			if !p.Valid() {
				return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown platform %q", p)
			}
			f.Platform = p
		}
	}
	rows := s.inbox.Filtered(f)
	items := make([]any, 0, len(rows))
	for _, r := range rows {
		items = append(items, summaryFields(r))
	}
	return structpb.NewStruct(map[string]any{"conversations": items})
}

// WatchEvents streams channel state changes, inbox updates and send
// results. Slow clients miss events rather than blocking the daemon.
func (s *SyncService) WatchEvents(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			fields, ok := eventFields(evt)
			if !ok {
				continue
			}
			msg, err := structpb.NewStruct(fields)
			if err != nil {
				return grpcstatus.Errorf(codes.Internal, "encode event: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
