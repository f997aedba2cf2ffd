package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bajo34/wa-pro/internal/catalog"
	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/gateway"
	"github.com/bajo34/wa-pro/internal/ingest"
	"github.com/bajo34/wa-pro/internal/intelligence"
	"github.com/bajo34/wa-pro/internal/intent"
	"github.com/bajo34/wa-pro/internal/routing"
	"github.com/bajo34/wa-pro/internal/rules"
	"github.com/bajo34/wa-pro/internal/store"
	"github.com/bajo34/wa-pro/internal/wachat"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and reply engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			db, err := store.Open(cfg.Store.Path, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			log.Info().Str("path", cfg.Store.Path).Msg("database ready")

			states := store.NewStateStore(db)
			dedup := store.NewDedupStore(db)
			ruleStore := store.NewRuleStore(db)
			intelStore := store.NewIntelligenceStore(db)

			provider := catalog.NewProvider(cfg.Catalog, log)
			matcher := intelligence.NewMatcher(intelStore, log)
			router := intent.NewRouter(provider, matcher, ruleStore, log)
			sender := wachat.NewClient(cfg.Platform, log)

			pipeline := routing.New(routing.Deps{
				Gate:      ingest.NewGate(dedup, ruleStore, log),
				Rules:     rules.NewGate(cfg.Bot, ruleStore, log),
				States:    states,
				Router:    router,
				Sender:    sender,
				Humanizer: cfg.Humanizer,
				Bot:       cfg.Bot,
				Instance:  cfg.Platform.Instance,
			}, log)

			srv := gateway.New(cfg.Server, pipeline, ruleStore, intelStore, log)
			pipeline.SetEvents(srv.Hub())
			pipeline.Scheduler().SetNotifier(srv.Hub())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override the configured server port")
	return cmd
}
