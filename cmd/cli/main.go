package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/glizzus/au-stream/internal/config"
	"github.com/glizzus/au-stream/internal/datalayer"
	"github.com/glizzus/au-stream/internal/generator"
	"github.com/glizzus/au-stream/internal/pipeline"
	"github.com/glizzus/au-stream/internal/worker"
	"github.com/urfave/cli/v2"
)

var uuidGenerator = &generator.UUIDV4Generator{}

func pipelineOptions() (pipeline.Options, error) {
	cfg, err := config.NewPipelineConfigFromEnv()
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("failed to load pipeline config: %w", err)
	}
	return pipeline.Options{
		BlockSize:      cfg.BlockSize,
		BinaryCapacity: cfg.BinaryCapacity,
		AudioCapacity:  cfg.AudioCapacity,
	}, nil
}

// openInput opens path for reading, with "-" meaning standard input.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func convertAction(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return cli.Exit("Please provide exactly one input path, or - for standard input", 1)
	}
	opts, err := pipelineOptions()
	if err != nil {
		return err
	}

	in, err := openInput(c.Args().First())
	if err != nil {
		return err
	}
	defer in.Close()

	var out io.Writer = os.Stdout
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close %s: %w", path, cerr)
			}
		}()
		out = f
	}

	result, err := pipeline.Convert(c.Context, in, out, opts)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}
	slog.Info(
		"Conversion finished",
		slog.String("format", result.Header.Format().String()),
		slog.Int64("payloadBytes", result.PayloadBytes),
		slog.Int64("outputBytes", result.OutputBytes),
		slog.Duration("duration", result.Duration),
	)
	return nil
}

func probeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("Please provide exactly one input path, or - for standard input", 1)
	}
	opts, err := pipelineOptions()
	if err != nil {
		return err
	}

	in, err := openInput(c.Args().First())
	if err != nil {
		return err
	}
	defer in.Close()

	header, err := pipeline.Probe(c.Context, in, opts)
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	size := "unknown"
	if header.SizeKnown() {
		size = fmt.Sprintf("%d bytes", header.DataSize)
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "encoding\t%d\n", header.Encoding)
	fmt.Fprintf(w, "sample type\t%s\n", header.SampleType())
	fmt.Fprintf(w, "sample rate\t%d Hz\n", header.SampleRate)
	fmt.Fprintf(w, "channels\t%d\n", header.Channels)
	fmt.Fprintf(w, "data offset\t%d\n", header.DataOffset)
	fmt.Fprintf(w, "data size\t%s\n", size)
	return w.Flush()
}

func enqueueAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("Please provide exactly one input path", 1)
	}
	path := c.Args().First()

	id, err := uuidGenerator.Next()
	if err != nil {
		return fmt.Errorf("failed to generate job id: %w", err)
	}
	sourceKey := c.String("key")
	if sourceKey == "" {
		sourceKey = "sources/" + id + filepath.Ext(path)
	}
	destinations := &generator.KeyGenerator{Prefix: "converted", IDs: uuidGenerator}
	destinationKey, err := destinations.Next()
	if err != nil {
		return fmt.Errorf("failed to generate destination key: %w", err)
	}

	job := worker.ConversionJob{
		ID:             id,
		SourceKey:      sourceKey,
		DestinationKey: destinationKey,
		EnqueuedAt:     time.Now().UTC(),
	}

	if c.Bool("dry-run") {
		handler := &worker.PrintingJobHandler{}
		return handler.HandleJobs(c.Context, job)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return err
	}
	if err := storage.EnsureBucket(c.Context); err != nil {
		return fmt.Errorf("failed to ensure bucket: %w", err)
	}
	err = storage.Put(c.Context, sourceKey, f, datalayer.PutOptions{
		Size:        info.Size(),
		ContentType: datalayer.AUContentType,
	})
	if err != nil {
		return err
	}

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	rdb, err := datalayer.NewRedisClient(c.Context, redisConfig)
	if err != nil {
		return err
	}
	defer rdb.Close()

	handler, err := worker.NewRedisJobHandler(c.Context, rdb, redisConfig.JobStream, redisConfig.ConsumerGroup)
	if err != nil {
		return err
	}
	if err := handler.HandleJobs(c.Context, job); err != nil {
		return err
	}

	slog.Info(
		"Job enqueued",
		slog.String("jobID", job.ID),
		slog.String("sourceKey", job.SourceKey),
		slog.String("destinationKey", job.DestinationKey),
	)
	return nil
}

func setupLogging() error {
	logConfig, err := config.NewLogConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load log config: %w", err)
	}
	level, err := logConfig.SlogLevel()
	if err != nil {
		return err
	}
	// Standard output may carry converted audio, so logs go to standard error.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func main() {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			slog.Error("Failed to load .env file", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if err := setupLogging(); err != nil {
		slog.Error("Failed to set up logging", slog.Any("error", err))
		os.Exit(1)
	}

	app := &cli.App{
		Name:        "au-stream",
		Usage:       "Stream and re-encode Sun AU audio files",
		Description: "Converts AU files through a streaming demux/mux pipeline, locally or through the worker queue",
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Re-encode an AU file, writing to standard output by default",
				ArgsUsage: "<path|->",
				Action:    convertAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "File to write the converted stream to",
					},
				},
			},
			{
				Name:      "probe",
				Usage:     "Print the header of an AU file",
				ArgsUsage: "<path|->",
				Action:    probeAction,
			},
			{
				Name:      "enqueue",
				Usage:     "Upload an AU file and queue it for conversion by a worker",
				ArgsUsage: "<path>",
				Action:    enqueueAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "key",
						Usage: "Object key to upload the source file to",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Log the job instead of uploading and enqueueing it",
					},
				},
			},
			{
				Name:      "inspect",
				Usage:     "Show one recorded conversion",
				ArgsUsage: "<id>",
				Action:    inspectAction,
			},
			{
				Name:   "history",
				Usage:  "List recorded conversions, newest first",
				Action: historyAction,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Maximum number of conversions to list",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running CLI", slog.Any("error", err))
		os.Exit(1)
	}
}
