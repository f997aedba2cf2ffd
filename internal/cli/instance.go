package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/wachat"
)

func newInstanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage the chat platform instance",
	}

	cmd.AddCommand(newInstanceCreateCmd())
	cmd.AddCommand(newInstanceConnectCmd())
	return cmd
}

func newInstanceCreateCmd() *cobra.Command {
	var (
		webhookURL string
		qr         bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the platform instance and point its webhook at this server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if webhookURL == "" {
				return fmt.Errorf("--webhook-url is required")
			}

			client := wachat.NewClient(cfg.Platform, log)
			res, err := client.CreateInstance(cmd.Context(), webhookURL, cfg.Server.WebhookSecret, qr)
			if err != nil {
				return fmt.Errorf("creating instance: %w", err)
			}
			return printJSON(res)
		},
	}

	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "public URL of this server's /webhooks/wa endpoint")
	cmd.Flags().BoolVar(&qr, "qr", true, "request a pairing QR code")
	return cmd
}

func newInstanceConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Fetch the connection state and pairing code for the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			client := wachat.NewClient(cfg.Platform, log)
			res, err := client.Connect(cmd.Context())
			if err != nil {
				return fmt.Errorf("connecting instance: %w", err)
			}
			return printJSON(res)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
