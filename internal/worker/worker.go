// Package worker executes one translation unit end to end: it loads the
// subtitle, drives the configured backend strategy cue by cue or in batches,
// streams progress, writes the output file and finalizes ledger state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sublingo/sublingo/internal/config"
	"github.com/sublingo/sublingo/internal/ledger"
	"github.com/sublingo/sublingo/internal/notify"
	"github.com/sublingo/sublingo/internal/provider"
	"github.com/sublingo/sublingo/internal/subtitle"
	"github.com/sublingo/sublingo/pkg/log"
)

const (
	defaultBatchSize     = 20
	defaultContextBefore = 2
	defaultContextAfter  = 2
)

// Worker is the boundary that converts every outcome into a terminal ledger
// state; nothing below it may leave a request stuck in progress.
type Worker struct {
	ledger   *ledger.Ledger
	registry *provider.Registry
	settings *config.Store
	reader   subtitle.Reader
	writer   subtitle.Writer
	notifier notify.Publisher
}

func New(ledg *ledger.Ledger, registry *provider.Registry, settings *config.Store, notifier notify.Publisher) *Worker {
	if notifier == nil {
		notifier = notify.NopPublisher{}
	}
	return &Worker{
		ledger:   ledg,
		registry: registry,
		settings: settings,
		reader:   subtitle.NewReader(),
		writer:   subtitle.NewWriter(),
		notifier: notifier,
	}
}

// Execute runs the request through its state machine. Redelivery of a
// terminal request is a no-op; cancellation is a clean exit, not an error.
func (w *Worker) Execute(ctx context.Context, requestID string) error {
	req, err := w.ledger.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			log.Warn("Dropping job for unknown request %s", requestID)
			return nil
		}
		return err
	}
	if req.Status.Terminal() {
		log.Debug("Request %s already %s, ignoring redelivery", req.ID, req.Status)
		return nil
	}
	if ctx.Err() != nil {
		return w.finishCancelled(req)
	}

	req, err = w.ledger.TransitionTo(ctx, req.ID, ledger.StatusInProgress)
	if err != nil {
		return fmt.Errorf("mark request %s in progress: %w", requestID, err)
	}

	file, err := w.reader.Read(req.SubtitlePath)
	if err != nil {
		return w.finishFailed(req, fmt.Errorf("read subtitle: %w", err))
	}
	if len(file.Cues) == 0 {
		return w.finishFailed(req, fmt.Errorf("subtitle %s contains no cues", req.SubtitlePath))
	}

	backend := w.settings.Get(ctx, config.KeyServiceType)
	strategy, err := w.registry.Get(ctx, backend)
	if err != nil {
		return w.finishFailed(req, err)
	}

	translated, err := w.translate(ctx, req, strategy, file.Cues)
	if err != nil {
		if isCancellation(ctx, err) {
			return w.finishCancelled(req)
		}
		return w.finishFailed(req, err)
	}
	if ctx.Err() != nil {
		return w.finishCancelled(req)
	}

	outputPath := subtitle.TranslatedPath(req.SubtitlePath, req.TargetLang)
	output := &subtitle.File{Path: outputPath, Format: file.Format, Header: file.Header, Cues: translated}
	if err := w.writer.Write(outputPath, output); err != nil {
		return w.finishFailed(req, fmt.Errorf("write translated subtitle: %w", err))
	}

	if _, err := w.ledger.TransitionTo(ctx, req.ID, ledger.StatusCompleted, ledger.WithOutputPath(outputPath)); err != nil {
		return fmt.Errorf("mark request %s completed: %w", req.ID, err)
	}
	w.publishProgress(req, 100, true)
	log.Info("Translated %s to %s (%d cues) via %s", req.SubtitlePath, req.TargetLang, len(translated), strategy.Name())
	return nil
}

// translate picks the batched path when the backend supports it and batching
// is enabled, the line-wise path otherwise.
func (w *Worker) translate(ctx context.Context, req *ledger.Request, strategy provider.Translator, cues []subtitle.Cue) ([]subtitle.Cue, error) {
	batcher, batchable := strategy.(provider.BatchTranslator)
	if batchable && w.settings.GetBool(ctx, config.KeyBatchEnabled, true) {
		return w.translateBatched(ctx, req, batcher, cues)
	}
	return w.translateLines(ctx, req, strategy, cues)
}

func (w *Worker) translateBatched(ctx context.Context, req *ledger.Request, strategy provider.BatchTranslator, cues []subtitle.Cue) ([]subtitle.Cue, error) {
	batchSize := w.settings.GetInt(ctx, config.KeyBatchSize, defaultBatchSize)
	if batchSize < 1 {
		batchSize = 1
	}
	before := w.settings.GetInt(ctx, config.KeyContextBefore, defaultContextBefore)
	after := w.settings.GetInt(ctx, config.KeyContextAfter, defaultContextAfter)

	translated := make([]subtitle.Cue, len(cues))
	copy(translated, cues)

	processed := 0
	for start := 0; start < len(cues); start += batchSize {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		end := min(start+batchSize, len(cues))

		units := buildBatch(cues, start, end, before, after)
		result, err := strategy.TranslateBatch(ctx, units, req.SourceLang, req.TargetLang)
		if err != nil {
			return nil, err
		}

		for i := start; i < end; i++ {
			text, ok := result[cues[i].Position]
			if !ok {
				log.Warn("Request %s: position %d missing from batch response, leaving untranslated", req.ID, cues[i].Position)
				continue
			}
			translated[i] = translated[i].WithText(text)
		}

		processed += end - start
		w.publishProgress(req, percent(processed, len(cues)), false)
	}
	return translated, nil
}

func (w *Worker) translateLines(ctx context.Context, req *ledger.Request, strategy provider.Translator, cues []subtitle.Cue) ([]subtitle.Cue, error) {
	before := w.settings.GetInt(ctx, config.KeyContextBefore, defaultContextBefore)
	after := w.settings.GetInt(ctx, config.KeyContextAfter, defaultContextAfter)

	translated := make([]subtitle.Cue, len(cues))
	copy(translated, cues)

	for i := range cues {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		contextBefore := neighbouringLines(cues, i, -before)
		contextAfter := neighbouringLines(cues, i, after)

		lines := make([]string, len(cues[i].Lines))
		for j, line := range cues[i].Lines {
			text, err := strategy.Translate(ctx, line, req.SourceLang, req.TargetLang, contextBefore, contextAfter)
			if err != nil {
				return nil, err
			}
			lines[j] = text
		}
		translated[i].Lines = lines

		w.publishProgress(req, percent(i+1, len(cues)), false)
	}
	return translated, nil
}

// buildBatch assembles the units for cues[start:end) plus bounded context
// windows on both sides.
func buildBatch(cues []subtitle.Cue, start, end, before, after int) []provider.BatchUnit {
	units := make([]provider.BatchUnit, 0, end-start+before+after)

	for i := max(start-before, 0); i < start; i++ {
		units = append(units, provider.BatchUnit{Position: cues[i].Position, Line: cues[i].Text(), ContextOnly: true})
	}
	for i := start; i < end; i++ {
		units = append(units, provider.BatchUnit{Position: cues[i].Position, Line: cues[i].Text()})
	}
	for i := end; i < min(end+after, len(cues)); i++ {
		units = append(units, provider.BatchUnit{Position: cues[i].Position, Line: cues[i].Text(), ContextOnly: true})
	}
	return units
}

// neighbouringLines flattens the lines of up to n cues adjacent to index i.
// Negative n looks backwards.
func neighbouringLines(cues []subtitle.Cue, i, n int) []string {
	var lines []string
	if n < 0 {
		for j := max(i+n, 0); j < i; j++ {
			lines = append(lines, cues[j].Lines...)
		}
		return lines
	}
	for j := i + 1; j <= min(i+n, len(cues)-1); j++ {
		lines = append(lines, cues[j].Lines...)
	}
	return lines
}

func (w *Worker) finishCancelled(req *ledger.Request) error {
	if _, err := w.ledger.TransitionTo(context.Background(), req.ID, ledger.StatusCancelled); err != nil {
		return fmt.Errorf("mark request %s cancelled: %w", req.ID, err)
	}
	w.publishProgress(req, 0, true)
	log.Info("Request %s cancelled", req.ID)
	return nil
}

func (w *Worker) finishFailed(req *ledger.Request, cause error) error {
	if provider.IsTranslationError(cause) {
		log.Error("Request %s failed in translation backend: %v", req.ID, cause)
	} else {
		log.Error("Request %s failed: %v", req.ID, cause)
	}

	if _, err := w.ledger.TransitionTo(context.Background(), req.ID, ledger.StatusFailed, ledger.WithError(cause.Error())); err != nil {
		return fmt.Errorf("mark request %s failed: %w", req.ID, err)
	}
	w.publishProgress(req, 0, true)
	return nil
}

func (w *Worker) publishProgress(req *ledger.Request, progress int, completed bool) {
	w.notifier.Publish(notify.TopicProgress, notify.ProgressEvent{
		JobID:     req.JobHandle,
		Progress:  progress,
		Completed: completed,
	})
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func percent(processed, total int) int {
	return int(math.Round(float64(processed) * 100 / float64(total)))
}
