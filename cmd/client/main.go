package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidevmon/mcp-transport/internal/config"
	"github.com/aidevmon/mcp-transport/internal/observe"
	"github.com/aidevmon/mcp-transport/internal/protocol"
	"github.com/aidevmon/mcp-transport/internal/transport"
	"github.com/aidevmon/mcp-transport/pkg/logger"
)

var (
	serverURL   string
	metricsAddr string
	priority    string
	waitTimeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "mcp-client",
		Short: "MCP transport demo client",
	}
	root.PersistentFlags().StringVar(&serverURL, "url", "", "server URL (overrides MCP_SERVER_URL)")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "expose /metrics and /healthz on this address")

	suggest := &cobra.Command{
		Use:   "suggest <original-file> <proposed-file>",
		Short: "Send a code suggestion and print its evaluation",
		Args:  cobra.ExactArgs(2),
		RunE:  runSuggest,
	}
	suggest.Flags().StringVar(&priority, "priority", "medium", "send priority: high|medium|low")
	suggest.Flags().DurationVar(&waitTimeout, "timeout", 60*time.Second, "response timeout")
	root.AddCommand(suggest)

	status := &cobra.Command{
		Use:   "ping",
		Short: "Connect, report connection status and statistics, disconnect",
		RunE:  runPing,
	}
	root.AddCommand(status)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() (*transport.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if metricsAddr != "" {
		go func() {
			if err := observe.StartHTTP(metricsAddr); err != nil {
				logger.S().Warnw("metrics_http_exit", "err", err)
			}
		}()
	}
	return transport.New(cfg), nil
}

func runSuggest(cmd *cobra.Command, args []string) error {
	original, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	proposed, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	cli, err := newClient()
	if err != nil {
		return err
	}
	if err := cli.Connect(cmd.Context()); err != nil {
		return err
	}
	defer cli.Disconnect(false)

	p := transport.PriorityMedium
	switch priority {
	case "high":
		p = transport.PriorityHigh
	case "low":
		p = transport.PriorityLow
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), waitTimeout)
	defer cancel()
	resp, err := cli.Send(ctx, protocol.MsgSuggestion, protocol.SuggestionPayload{
		OriginalCode:    string(original),
		ProposedChanges: string(proposed),
		FilePath:        args[1],
	}, transport.WithPriority(p))
	if err != nil {
		return err
	}

	var eval protocol.EvaluationPayload
	if err := resp.DecodeContent(&eval); err != nil {
		return fmt.Errorf("unexpected %s content: %w", resp.Type, err)
	}
	out, _ := json.MarshalIndent(eval, "", "  ")
	fmt.Println(string(out))
	printStats(cli)
	return nil
}

func runPing(cmd *cobra.Command, _ []string) error {
	cli, err := newClient()
	if err != nil {
		return err
	}
	if err := cli.Connect(cmd.Context()); err != nil {
		return err
	}
	defer cli.Disconnect(false)

	st := cli.Status()
	fmt.Printf("state=%s attempts=%d queued=%d pending=%d\n",
		st.State, st.ReconnectAttempts, st.QueuedMessages, st.PendingRequests)
	printStats(cli)
	return nil
}

func printStats(cli *transport.Client) {
	s := cli.Statistics()
	fmt.Printf("sent=%d received=%d bytes_sent=%d bytes_received=%d compressed=%d saved=%d batched=%d quality=%s avg_latency=%s\n",
		s.MessagesSent, s.MessagesReceived, s.BytesSent, s.BytesReceived,
		s.MessagesCompressed, s.BytesSaved, s.MessagesBatched,
		s.ConnectionQuality, s.AverageLatency)
}
