// Command omnisyncctl queries a running omnisyncd over its profile socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/omnisync/internal/api"
	"github.com/matheus3301/omnisync/internal/session"
)

var (
	profileFlag  string
	jsonFlag     bool
	queryFlag    string
	platformFlag string
)

var rootCmd = &cobra.Command{
	Use:           "omnisyncctl",
	Short:         "Inspect a running omnisync daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show channel health and inbox counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.HealthService})
		if err != nil {
			return fmt.Errorf("daemon not reachable for profile %q: %w", profile(), err)
		}
		st, err := api.NewClient(conn).GetStatus(ctx)
		if err != nil {
			return err
		}

		if jsonFlag {
			if err := printJSON(health); err != nil {
				return err
			}
			return printJSON(st)
		}
		f := st.GetFields()
		fmt.Printf("Profile:       %s\n", f["profile"].GetStringValue())
		fmt.Printf("Health:        %s\n", health.GetStatus())
		fmt.Printf("Channel:       %s (since %s)\n", f["state"].GetStringValue(), f["state_since"].GetStringValue())
		fmt.Printf("Conversations: %d (%d unread)\n", int(f["conversations"].GetNumberValue()), int(f["unread"].GetNumberValue()))
		fmt.Printf("Loading:       %v\n", f["loading"].GetBoolValue())
		fmt.Printf("Uptime:        %s\n", (time.Duration(f["uptime_ms"].GetNumberValue()) * time.Millisecond).Round(time.Second))
		return nil
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		resp, err := api.NewClient(conn).ListConversations(ctx, queryFlag, platformFlag)
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(resp)
		}
		rows := resp.GetFields()["conversations"].GetListValue().GetValues()
		if len(rows) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, v := range rows {
			f := v.GetStructValue().GetFields()
			unread := ""
			if n := int(f["unread_count"].GetNumberValue()); n > 0 {
				unread = fmt.Sprintf("(%d)", n)
			}
			fmt.Printf("%-5s %-10s %-28s %s\n", unread, f["platform"].GetStringValue(), f["name"].GetStringValue(),
				f["last_message"].GetStructValue().GetFields()["preview"].GetStringValue())
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stream, err := api.NewClient(conn).WatchEvents(ctx)
		if err != nil {
			return err
		}
		for {
			evt, err := stream.Recv()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			if jsonFlag {
				if err := printJSON(evt); err != nil {
					return err
				}
				continue
			}
			printEvent(evt)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	inboxCmd.Flags().StringVar(&queryFlag, "query", "", "filter by name, phone, email or instagram")
	inboxCmd.Flags().StringVar(&platformFlag, "platform", "", "filter by platform (whatsapp|instagram|email)")
	rootCmd.AddCommand(statusCmd, inboxCmd, watchCmd)
}

func profile() string {
	return session.Resolve(profileFlag)
}

func dial() (*grpc.ClientConn, error) {
	name := profile()
	if err := session.ValidateName(name); err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(
		"unix://"+session.SocketPath(name),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return conn, nil
}

func printJSON(m proto.Message) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}

// printEvent writes one event as "ts kind key=value ...", keys sorted.
func printEvent(evt *structpb.Struct) {
	f := evt.GetFields()
	keys := make([]string, 0, len(f))
	for k := range f {
		if k != "kind" && k != "ts" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	line := fmt.Sprintf("%s %s", f["ts"].GetStringValue(), f["kind"].GetStringValue())
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%v", k, f[k].AsInterface())
	}
	fmt.Println(line)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
