package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/claimtrace/internal/pipeline"
)

var batchManifest string

// batchItem is one entry in the batch manifest: a document file and what to
// extract from it.
type batchItem struct {
	Doc     string `yaml:"doc"`
	Context string `yaml:"context"`
}

type manifest struct {
	Extractions []batchItem `yaml:"extractions"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract claims from a manifest of source documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := loadManifest(batchManifest)
		if err != nil {
			return err
		}

		return processBatch(ctx, env, items, cfg.Batch.MaxConcurrentExtractions)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "", "path to extraction manifest YAML (required)")
	_ = batchCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(batchCmd)
}

func loadManifest(path string) ([]batchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read manifest %s", path)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "parse manifest %s", path)
	}
	for i, item := range m.Extractions {
		if item.Doc == "" || item.Context == "" {
			return nil, eris.Errorf("manifest entry %d: doc and context are required", i)
		}
	}
	return m.Extractions, nil
}

// processBatch runs extractions concurrently, bounded by concurrency. An
// individual rejection never aborts the batch; exhausted extractions already
// sit in the review queue.
func processBatch(ctx context.Context, env *pipelineEnv, items []batchItem, concurrency int) error {
	if len(items) == 0 {
		zap.L().Info("manifest has no extractions")
		return nil
	}

	zap.L().Info("processing batch",
		zap.Int("extractions", len(items)),
		zap.Int("concurrency", concurrency),
	)

	primeSharedDocuments(ctx, env, items)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var accepted, rejected, failed atomic.Int64

	for _, item := range items {
		g.Go(func() error {
			log := zap.L().With(zap.String("doc", item.Doc))

			doc, err := loadDocument(item.Doc)
			if err != nil {
				failed.Add(1)
				log.Error("document load failed", zap.Error(err))
				return nil
			}

			row, err := env.Orchestrator.Run(gctx, doc, item.Context)
			if err != nil {
				var exhausted *pipeline.ExhaustedError
				if errors.As(err, &exhausted) {
					rejected.Add(1)
					log.Warn("extraction rejected, queued for manual review",
						zap.Int("attempts", exhausted.Attempts))
					return nil
				}
				if gctx.Err() != nil {
					return err
				}
				failed.Add(1)
				log.Error("extraction failed", zap.Error(err))
				return nil
			}

			accepted.Add(1)
			log.Info("extraction complete",
				zap.String("extraction_id", row.ExtractionID),
				zap.String("status", string(row.Status)),
				zap.Float64("final_confidence", row.FinalConfidence),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("accepted", accepted.Load()),
		zap.Int64("rejected", rejected.Load()),
		zap.Int64("failed", failed.Load()),
	)

	snap := env.Collector.Snapshot()
	if alerts := env.Alerter.Evaluate(snap, nil); len(alerts) > 0 {
		env.Alerter.SendAlerts(ctx, alerts)
	}

	return nil
}

// primeSharedDocuments warms the prompt cache for documents that several
// manifest entries extract from, one sequential request each, before the
// concurrent extractions start. Priming is best effort.
func primeSharedDocuments(ctx context.Context, env *pipelineEnv, items []batchItem) {
	if env.Proposer == nil {
		return
	}

	counts := make(map[string]int, len(items))
	for _, item := range items {
		counts[item.Doc]++
	}

	for path, n := range counts {
		if n < 2 {
			continue
		}
		doc, err := loadDocument(path)
		if err != nil {
			continue
		}
		if err := env.Proposer.Prime(ctx, doc); err != nil {
			zap.L().Warn("cache primer failed", zap.String("doc", path), zap.Error(err))
			continue
		}
		zap.L().Info("prompt cache primed", zap.String("doc", path), zap.Int("extractions", n))
	}
}
