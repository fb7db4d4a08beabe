package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/sheet"
)

var batchFlags struct {
	file      string
	sheetName string
	skipRows  int
	limit     int
	out       string
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Classify every request in an xlsx sheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchFlags.file == "" {
			return eris.New("--file is required")
		}
		reqs, err := sheet.ReadRequests(batchFlags.file, sheet.Options{
			SheetName: batchFlags.sheetName,
			SkipRows:  batchFlags.skipRows,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := processBatch(ctx, reqs, batchFlags.limit, cfg.Batch.MaxConcurrent, env.Pipeline.Run)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if batchFlags.out != "" {
			f, err := os.Create(batchFlags.out)
			if err != nil {
				return eris.Wrapf(err, "create %s", batchFlags.out)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		return writeResults(w, results)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFlags.file, "file", "", "path to the xlsx request sheet (required)")
	batchCmd.Flags().StringVar(&batchFlags.sheetName, "sheet", "", "sheet name (default first sheet)")
	batchCmd.Flags().IntVar(&batchFlags.skipRows, "skip-rows", 0, "rows to skip before the header")
	batchCmd.Flags().IntVar(&batchFlags.limit, "limit", 100, "max number of requests to process")
	batchCmd.Flags().StringVar(&batchFlags.out, "out", "", "write JSON lines to this file instead of stdout")
	rootCmd.AddCommand(batchCmd)
}

// classifyFunc runs one request.
type classifyFunc func(ctx context.Context, req model.Request) *model.RunResult

// processBatch applies limit, then classifies requests concurrently. Results
// keep the order of reqs; a request skipped by cancellation leaves a nil slot.
func processBatch(ctx context.Context, reqs []model.Request, limit, concurrency int, classify classifyFunc) ([]*model.RunResult, error) {
	if len(reqs) == 0 {
		zap.L().Info("no requests found")
		return nil, nil
	}

	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("requests", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	start := time.Now()
	results := make([]*model.RunResult, len(reqs))
	var escalated, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := classify(gctx, req)
			results[i] = res
			switch res.Status {
			case model.RunStatusEscalated:
				escalated.Add(1)
			case model.RunStatusFailed:
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "batch")
	}

	zap.L().Info("batch complete",
		zap.Int("requests", len(reqs)),
		zap.Int32("escalated", escalated.Load()),
		zap.Int32("failed", failed.Load()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, ctx.Err()
}

// writeResults writes one JSON document per line.
func writeResults(w io.Writer, results []*model.RunResult) error {
	enc := json.NewEncoder(w)
	for _, res := range results {
		if res == nil {
			continue
		}
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "encode result")
		}
	}
	return nil
}
