package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/catalogfeed"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: catalog-import [--database-url URL] feed.jsonl[.gz] ...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args()); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, databaseURL string, feeds []string) error {
	start := time.Now()
	slog.Info("reading feeds", slog.Int("files", len(feeds)))

	records, err := catalogfeed.ReadAll(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "read feeds")
	}
	slog.Info("feeds read", slog.Int("records", len(records)), slog.Duration("took", time.Since(start)))

	if len(records) == 0 {
		slog.Info("nothing to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	im := catalogfeed.NewImporter(postgres.NewImportStore(pool))
	im.Progress = func(done, total int) {
		slog.Info("write progress", slog.Int("written", done), slog.Int("total", total))
	}
	res, err := im.Import(ctx, records)
	if err != nil {
		return errors.Wrap(err, "import")
	}

	slog.Info("import finished",
		slog.Int("copied", res.Copied),
		slog.Int("upserted", res.Upserted),
		slog.Int("categories", res.Categories),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
