package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/slackmgr/orderbus/config"
	"github.com/slackmgr/orderbus/internal/logging"
	"github.com/slackmgr/orderbus/orders"
	"github.com/slackmgr/orderbus/sqs"
	"github.com/spf13/cobra"
)

func newPublishCommand(envFile *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an order read from a JSON file",
		Long:  "Publish an order to the persistence queue and, when configured, the notification queue. Use --file - to read from stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}

			logger := logging.Stderr(cfg.LogLevel, cfg.LogFormat).WithField("service", "orderctl")

			awsCfg, err := cfg.AWS.LoadAWS(ctx)
			if err != nil {
				return err
			}

			dests, err := orders.ProducerDestinations(cfg.Source())
			if err != nil {
				return err
			}

			publisher, err := sqs.NewPublisher(&awsCfg, dests, logger).Init(ctx)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			return publishOrder(ctx, in, cmd.OutOrStdout(), orders.NewProducer(publisher, logger))
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path of the order JSON file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// publishOrder decodes one order from r, publishes it and writes the
// normalized order to w.
func publishOrder(ctx context.Context, r io.Reader, w io.Writer, producer *orders.Producer) error {
	var order orders.Order

	if err := json.NewDecoder(r).Decode(&order); err != nil {
		return fmt.Errorf("failed to decode order: %w", err)
	}

	published, err := producer.PublishOrder(ctx, order)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(published)
}
