package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/glizzus/au-stream/internal/datalayer"
	"github.com/glizzus/au-stream/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

type conversionGetter interface {
	Get(ctx context.Context, id string) (repository.Conversion, error)
}

func openRepository(ctx context.Context) (*repository.PostgresConversionRepository, *pgxpool.Pool, error) {
	pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}
	return repository.NewPostgresConversionRepository(pool), pool, nil
}

func describeFormat(conv repository.Conversion) string {
	if conv.Status != repository.StatusSucceeded {
		return "-"
	}
	return fmt.Sprintf("%s %gHz %dch", conv.SampleType, conv.SampleRate, conv.Channels)
}

func writeHistory(out io.Writer, conversions []repository.Conversion) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSOURCE\tDESTINATION\tFORMAT\tBYTES\tCREATED\tERROR")
	for _, conv := range conversions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			conv.ID,
			conv.Status,
			conv.SourceKey,
			conv.DestinationKey,
			describeFormat(conv),
			conv.PayloadBytes,
			conv.CreatedAt.Format(time.RFC3339),
			conv.Error,
		)
	}
	return w.Flush()
}

func writeConversion(out io.Writer, conv repository.Conversion) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", conv.ID)
	fmt.Fprintf(w, "status\t%s\n", conv.Status)
	fmt.Fprintf(w, "source\t%s\n", conv.SourceKey)
	fmt.Fprintf(w, "destination\t%s\n", conv.DestinationKey)
	fmt.Fprintf(w, "format\t%s\n", describeFormat(conv))
	fmt.Fprintf(w, "payload bytes\t%d\n", conv.PayloadBytes)
	fmt.Fprintf(w, "created\t%s\n", conv.CreatedAt.Format(time.RFC3339))
	if conv.Error != "" {
		fmt.Fprintf(w, "error\t%s\n", conv.Error)
	}
	return w.Flush()
}

// inspect prints the conversion with the given id. An unknown id is reported
// as a usage error rather than a failure of the CLI.
func inspect(ctx context.Context, repo conversionGetter, id string, out io.Writer) error {
	conv, err := repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("No conversion with id %s", id), 1)
	}
	if err != nil {
		return err
	}
	return writeConversion(out, conv)
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("Please provide exactly one conversion id", 1)
	}

	repo, pool, err := openRepository(c.Context)
	if err != nil {
		return err
	}
	defer pool.Close()

	return inspect(c.Context, repo, c.Args().First(), c.App.Writer)
}

func historyAction(c *cli.Context) error {
	repo, pool, err := openRepository(c.Context)
	if err != nil {
		return err
	}
	defer pool.Close()

	conversions, err := repo.List(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(conversions) == 0 {
		slog.Info("No conversions recorded yet")
		return nil
	}
	return writeHistory(c.App.Writer, conversions)
}

var _ conversionGetter = (*repository.PostgresConversionRepository)(nil)
