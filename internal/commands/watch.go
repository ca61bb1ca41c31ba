package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"valuta/internal/amqp"
	"valuta/internal/cli"
	applog "valuta/internal/log"
)

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print rate table updates published by a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			if !cfg.AMQPEnabled() {
				return errors.New("AMQP_URL is required to watch rate updates")
			}
			logger := cli.SetupLogger(cfg, cmd.ErrOrStderr())

			client := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, cfg.AMQPQueue, logger)
			defer client.Close()

			parent, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			ctx, done := cli.GracefulShutdown(parent, logger, shutdownTimeout, nil)
			out := cmd.OutOrStdout()
			err = client.ConsumeRatesUpdated(ctx, func(msg *amqp.RatesUpdatedMessage) error {
				_, err := fmt.Fprintf(out, "%s  base=%s rates=%d fetched=%s\n",
					msg.PublishedAt.Format("2006-01-02 15:04:05"), msg.BaseCode, msg.RateCount,
					msg.FetchedAt.Format("2006-01-02 15:04:05"))
				return err
			})
			cancel()
			<-done
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Watching rate updates failed", applog.FieldError, err.Error())
				return err
			}
			return nil
		},
	}
}
