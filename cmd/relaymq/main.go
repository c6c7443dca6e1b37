// Command relaymq is a small operator CLI around the relaymq client
// library: publish an event, tail a topic subscription, or round-trip an
// RPC call against a running broker, without writing any Go.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	relaymq "github.com/relaymq/relaymq"
	"github.com/relaymq/relaymq/internal/log"
)

var (
	cfgFile      string
	topologyFile string
	logger       log.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relaymq",
		Short: "Operate an AMQP RPC/pub-sub broker from the command line",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a relaymq config file (default: search $HOME/.relaymq, /etc/relaymq, .)")
	root.PersistentFlags().StringVar(&topologyFile, "topology", "", "path to a YAML Topology file to assert on connect")

	root.AddCommand(newPublishCmd())
	root.AddCommand(newSubscribeCmd())
	root.AddCommand(newCallCmd())
	return root
}

func newClientFromConfig() (*relaymq.Client, error) {
	v, err := loadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	logger = log.NewZero(log.ZeroOptions{PrettyPrint: true})
	opts := []relaymq.Option{
		relaymq.WithLogger(logger),
		relaymq.WithPoolSize(v.GetInt("pool.min"), v.GetInt("pool.max")),
		relaymq.WithReconnect(v.GetBool("reconnect"), time.Second, 0),
	}

	if topologyFile == "" {
		topologyFile = v.GetString("topology")
	}
	if topologyFile != "" {
		data, err := os.ReadFile(topologyFile)
		if err != nil {
			return nil, fmt.Errorf("reading topology file: %w", err)
		}
		topology, err := relaymq.LoadTopologyYAML(data)
		if err != nil {
			return nil, err
		}
		opts = append(opts, relaymq.WithTopology(topology))
	}

	client := relaymq.NewClient(v.GetString("url"), opts...)
	if err := client.EnsureTopology(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func newPublishCmd() *cobra.Command {
	var exchange, exchangeType, routingKey, payload string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a JSON payload to an exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClientFromConfig()
			if err != nil {
				return err
			}
			defer client.Close()

			var data interface{}
			if err := json.Unmarshal([]byte(payload), &data); err != nil {
				return fmt.Errorf("decoding --data as JSON: %w", err)
			}

			pub := client.NewPublisher(exchange, exchangeType, true)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return pub.Publish(ctx, routingKey, data)
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "events", "exchange to publish to")
	cmd.Flags().StringVar(&exchangeType, "type", "topic", "exchange type (topic, direct, fanout)")
	cmd.Flags().StringVar(&routingKey, "routing-key", "", "routing key / event name")
	cmd.Flags().StringVar(&payload, "data", "{}", "JSON payload")
	return cmd
}

func newSubscribeCmd() *cobra.Command {
	var exchange, exchangeType, pattern, queue string
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Print events matching a topic pattern until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClientFromConfig()
			if err != nil {
				return err
			}
			defer client.Close()

			sub := client.NewSubscriber(exchange, exchangeType, queue)
			sub.On(pattern, func(ctx context.Context, env *relaymq.EventEnvelope, routingKey string) error {
				body, _ := json.Marshal(env)
				fmt.Println(string(body))
				return nil
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := sub.Start(ctx); err != nil {
				return err
			}

			waitForSignal()
			return sub.Stop()
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "events", "exchange to bind to")
	cmd.Flags().StringVar(&exchangeType, "type", "topic", "exchange type (topic, direct, fanout)")
	cmd.Flags().StringVar(&pattern, "pattern", "#", "topic binding pattern")
	cmd.Flags().StringVar(&queue, "queue", "", "queue name (empty for an exclusive auto-generated queue)")
	return cmd
}

func newCallCmd() *cobra.Command {
	var command, payload, exchange string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Issue an RPC call and print the response",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClientFromConfig()
			if err != nil {
				return err
			}
			defer client.Close()

			rc, err := client.NewRpcClient(exchange)
			if err != nil {
				return err
			}
			defer rc.Close()

			var data interface{}
			if err := json.Unmarshal([]byte(payload), &data); err != nil {
				return fmt.Errorf("decoding --data as JSON: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			resp, err := rc.Send(ctx, command, data)
			if err != nil {
				return err
			}
			body, _ := json.MarshalIndent(resp, "", "  ")
			fmt.Println(string(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "RPC command name")
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange to publish the request to (empty for the default exchange)")
	cmd.Flags().StringVar(&payload, "data", "{}", "JSON request payload")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "call timeout")
	cmd.MarkFlagRequired("command")
	return cmd
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
