package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pevans/archscraper/discovery"
	"github.com/pevans/archscraper/ingest"
	"github.com/pevans/archscraper/logger"
	"github.com/pevans/archscraper/scraper"
	"github.com/spf13/cobra"
)

func newScrapeCommand() *cobra.Command {
	var (
		pages       int
		category    string
		source      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape listing pages and store their articles",
		Long: `Scrape listing pages 1..N of one source or all of them. Articles stored
within the freshness window are skipped. Failed articles are counted and the
run continues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			names := splitSources(source)
			if category != "" {
				if err := a.registry.ApplyOverrides(categoryOverrides(a.registry, names, category)); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if err := a.openStore(ctx); err != nil {
				return err
			}

			svc, err := a.service(names, concurrency, nil)
			if err != nil {
				return err
			}

			summary, runErr := svc.Run(ctx, ingest.RunOptions{Pages: pages})
			if summary != nil {
				renderSummary(os.Stdout, summary)
			}
			if runErr != nil {
				a.log.Error("Scrape aborted", logger.Error(runErr))
				return fmt.Errorf("scrape aborted: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 0, "listing pages per source (default from config)")
	cmd.Flags().StringVar(&category, "category", "", "category for sites whose listing URL takes one")
	cmd.Flags().StringVar(&source, "source", discovery.AllSites, "source name, comma-separated names, or all")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "articles scraped at once per page (default from config)")

	return cmd
}

// splitSources parses the --source flag.
func splitSources(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// categoryOverrides sets category on the selected sites, keeping each site's
// enabled state.
func categoryOverrides(r *discovery.Registry, names []string, category string) map[string]scraper.SiteOverride {
	if len(names) == 0 || (len(names) == 1 && names[0] == discovery.AllSites) {
		names = r.Names()
	}

	overrides := make(map[string]scraper.SiteOverride, len(names))
	for _, name := range names {
		if _, ok := r.Config(name); !ok {
			continue
		}
		enabled := r.Enabled(name)
		overrides[name] = scraper.SiteOverride{Enabled: &enabled, Category: category}
	}
	return overrides
}

// renderSummary prints one row per source and a totals footer.
func renderSummary(w io.Writer, summary *ingest.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Source", "Found", "Inserted", "Updated", "Unchanged", "Skipped", "Failed", "Duration", "Error"})
	for _, s := range summary.Sources {
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		t.AppendRow(table.Row{
			s.Source, s.Found, s.Inserted, s.Updated, s.Unchanged, s.Skipped, s.Failed,
			s.Duration.Round(time.Millisecond), errText,
		})
	}

	total := summary.Totals()
	t.AppendFooter(table.Row{
		"Total", total.Found, total.Inserted, total.Updated, total.Unchanged, total.Skipped, total.Failed,
		summary.Duration.Round(time.Millisecond), "",
	})

	t.Render()

	for _, s := range summary.Sources {
		if s.Sample != nil {
			fmt.Fprintf(w, "%s sample: %s (%s)\n", s.Source, s.Sample.Title, s.Sample.URL)
		}
	}
}
