package main

import (
	"context"
	"fmt"

	"github.com/pevans/archscraper/ingest"
	"github.com/pevans/archscraper/logger"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newScheduleCommand() *cobra.Command {
	var (
		spec   string
		source string
		pages  int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Scrape now and then on a cron schedule",
		Long: `Run one scrape immediately and then on the cron schedule. A run that is
still going when the next one is due causes that one to be skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.openStore(ctx); err != nil {
				return err
			}

			svc, err := a.service(splitSources(source), 0, nil)
			if err != nil {
				return err
			}

			if spec == "" {
				spec = a.cfg.Schedule.Cron
			}

			cl := cronLogger{log: a.log}
			job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
				Then(cron.FuncJob(func() { runScheduled(ctx, svc, pages, a.log) }))

			c := cron.New(cron.WithLogger(cl))
			if _, err := c.AddJob(spec, job); err != nil {
				return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
			}

			a.log.Info("Starting scheduler", logger.String("cron", spec), logger.Strings("sources", svc.Sources()))
			c.Start()
			first := runFirst(job)

			<-ctx.Done()
			a.log.Info("Stopping scheduler")
			<-c.Stop().Done()
			<-first
			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "cron schedule (default from config)")
	cmd.Flags().StringVar(&source, "source", "all", "source name, comma-separated names, or all")
	cmd.Flags().IntVar(&pages, "pages", 0, "listing pages per source (default from config)")

	return cmd
}

// runFirst runs job once outside the cron schedule. The returned channel is
// closed when it returns.
func runFirst(job cron.Job) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		job.Run()
	}()
	return done
}

func runScheduled(ctx context.Context, svc *ingest.Service, pages int, log logger.Logger) {
	summary, err := svc.Run(ctx, ingest.RunOptions{Pages: pages})
	if err != nil {
		log.Error("Scheduled scrape aborted", logger.Error(err))
	}
	if summary == nil {
		return
	}

	total := summary.Totals()
	log.Info("Scheduled scrape finished",
		logger.Int("found", total.Found),
		logger.Int("inserted", total.Inserted),
		logger.Int("updated", total.Updated),
		logger.Int("unchanged", total.Unchanged),
		logger.Int("skipped", total.Skipped),
		logger.Int("failed", total.Failed),
		logger.Duration("duration", summary.Duration),
	)
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(pairs(keysAndValues), logger.Error(err))...)
}

func pairs(keysAndValues []any) []logger.Field {
	fields := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
