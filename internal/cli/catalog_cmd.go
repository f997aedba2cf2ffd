package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bajo34/wa-pro/internal/catalog"
	"github.com/bajo34/wa-pro/internal/config"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the product catalog",
	}

	cmd.AddCommand(newCatalogListCmd())
	cmd.AddCommand(newCatalogSearchCmd())
	return cmd
}

func newCatalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			items := catalog.NewProvider(cfg.Catalog, log).Items()
			for i, item := range items {
				fmt.Println(catalog.FormatItemLine(item, i+1))
			}
			fmt.Printf("%d items\n", len(items))
			return nil
		},
	}
}

func newCatalogSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog the way the assistant does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			items := catalog.NewProvider(cfg.Catalog, log).Items()
			hits := catalog.Search(items, query, limit)
			if len(hits) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for i, item := range hits {
				fmt.Println(catalog.FormatItemLine(item, i+1))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 6, "maximum number of results")
	return cmd
}
