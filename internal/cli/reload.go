package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rfm-dashboard/internal/amqp"
)

func newReloadCmd(a *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask running dashboards to reload the ledger",
		Long: `Publish a reload request on the configured AMQP exchange. Every dashboard
consuming the reload queue rebuilds its snapshot from its ledger source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.AMQP.URL == "" {
				return fmt.Errorf("AMQP_URL is not configured")
			}

			client, err := amqp.NewClient(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.Queue, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			msg := amqp.NewReloadMessage("cli", reason)
			if err := client.PublishReload(cmd.Context(), msg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "note attached to the request")
	return cmd
}
