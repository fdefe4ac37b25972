package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quix-labs/el-amqp-transport/internals"
	"github.com/quix-labs/el-amqp-transport/internals/bulk"
	"github.com/quix-labs/el-amqp-transport/internals/types"
)

const defaultConfigFile = "/app/config.yaml"

type rootOptions struct {
	configFile string
	out        string
}

type documentOptions struct {
	id    string
	index string
	typ   string
}

func (o documentOptions) options() types.Options {
	return types.Options{Index: o.index, Type: o.typ}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "el-amqp",
		Short:         "Publish Elasticsearch bulk operations over RabbitMQ",
		SilenceUsage:  true,
		SilenceErrors: true,
		// stdout is reserved for command results.
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			internals.SetLogOutput(cmd.ErrOrStderr())
		},
	}

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = defaultConfigFile
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", configFile, "Path to the yaml configuration file")
	cmd.PersistentFlags().StringVarP(&opts.out, "out", "o", "", "Out section to publish to (defaults to the first default_out)")

	cmd.AddCommand(newListenCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newBulkCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))

	return cmd
}

func newListenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Relay events from every in section to their out sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(opts.configFile)
			if err != nil {
				return err
			}
			bridge := internals.NewBridge()
			defer bridge.Terminate()
			if err := bridge.Init(config); err != nil {
				return err
			}
			if err := bridge.InitSubscribers(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()
			bridge.Logger.Info().Int("subscribers", len(bridge.GetSubscribers())).Msg("Listening")
			return bridge.Start(ctx)
		},
	}
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var doc documentOptions

	cmd := &cobra.Command{
		Use:   "index [file|-]",
		Short: "Publish one index operation, reading the document from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if !json.Valid(content) {
				return errors.New("document is not valid JSON")
			}
			return withPublisher(cmd, opts, func(ctx context.Context, publisher types.AbstractPublisher) (*types.PublishResult, error) {
				return publisher.Index(ctx, json.RawMessage(content), doc.id, doc.options())
			})
		},
	}
	addDocumentFlags(cmd, &doc)
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var doc documentOptions

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Publish one delete operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPublisher(cmd, opts, func(ctx context.Context, publisher types.AbstractPublisher) (*types.PublishResult, error) {
				return publisher.Delete(ctx, doc.id, doc.options())
			})
		},
	}
	addDocumentFlags(cmd, &doc)
	return cmd
}

func newBulkCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bulk [file|-]",
		Short: "Publish a raw NDJSON bulk payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return withPublisher(cmd, opts, func(ctx context.Context, publisher types.AbstractPublisher) (*types.PublishResult, error) {
				return publisher.Request(ctx, bulk.BulkPath, http.MethodPost, string(content))
			})
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search is not available over the transport",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query any
			if len(args) == 1 {
				query = args[0]
			}
			return withPublisher(cmd, opts, func(ctx context.Context, publisher types.AbstractPublisher) (*types.PublishResult, error) {
				return publisher.Search(ctx, query)
			})
		},
	}
}

func addDocumentFlags(cmd *cobra.Command, doc *documentOptions) {
	cmd.Flags().StringVar(&doc.id, "id", "", "Document id (required)")
	cmd.Flags().StringVar(&doc.index, "index", "", "Target index (defaults to the out section)")
	cmd.Flags().StringVar(&doc.typ, "type", "", "Target mapping type (defaults to the out section)")
}

func loadConfig(path string) (*internals.Config, error) {
	config := &internals.Config{}
	if err := config.LoadFromYaml(path); err != nil {
		return nil, err
	}
	level, err := config.Level()
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)
	return config, nil
}

// withPublisher initializes only the selected out section, runs fn against it
// and prints the result as JSON.
func withPublisher(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, types.AbstractPublisher) (*types.PublishResult, error)) error {
	config, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}
	name, err := config.PublisherName(opts.out)
	if err != nil {
		return err
	}

	bridge := internals.NewBridge()
	defer bridge.Terminate()
	if err := bridge.Init(config, name); err != nil {
		return err
	}
	publisher, err := bridge.GetPublisher(name)
	if err != nil {
		return err
	}

	result, err := fn(cmd.Context(), publisher)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("cannot read stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", args[0], err)
	}
	return content, nil
}
