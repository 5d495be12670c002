package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pevans/archscraper/config"
	"github.com/pevans/archscraper/discovery"
	"github.com/pevans/archscraper/scraper"
	"github.com/pevans/archscraper/store"
	"github.com/spf13/cobra"
)

func newSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured sites",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sites with their last scrape time",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}

			rows, err := sourceRows(cmd.Context(), a.registry, a.store)
			if err != nil {
				return err
			}
			renderSources(os.Stdout, rows)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the effective site configurations as a sites file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sites := make(map[string]scraper.SiteConfig)
			for _, name := range a.registry.Names() {
				site, _ := a.registry.Config(name)
				sites[name] = site
			}

			data, err := config.MarshalSites(sites)
			if err != nil {
				return fmt.Errorf("failed to render sites: %w", err)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	})

	return cmd
}

// sourceRow is one line of `sources list`.
type sourceRow struct {
	Site          scraper.SiteConfig
	Enabled       bool
	LastScrapedAt *time.Time
}

func sourceRows(ctx context.Context, r *discovery.Registry, gw store.Gateway) ([]sourceRow, error) {
	rows := make([]sourceRow, 0, len(r.Names()))
	for _, name := range r.Names() {
		site, _ := r.Config(name)
		row := sourceRow{Site: site, Enabled: r.Enabled(name)}

		src, err := gw.GetSourceByName(ctx, name)
		switch {
		case err == nil:
			row.LastScrapedAt = src.LastScrapedAt
		case !errors.Is(err, store.ErrSourceNotFound):
			return nil, fmt.Errorf("failed to look up source %s: %w", name, err)
		}

		rows = append(rows, row)
	}
	return rows, nil
}

func renderSources(w io.Writer, rows []sourceRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Name", "Base URL", "Mode", "Category", "Enabled", "Last Scraped"})
	for _, row := range rows {
		last := "never"
		if row.LastScrapedAt != nil {
			last = row.LastScrapedAt.Local().Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{
			row.Site.Name,
			row.Site.BaseURL,
			row.Site.DiscoveryMode,
			row.Site.Category,
			row.Enabled,
			last,
		})
	}

	t.Render()
}
