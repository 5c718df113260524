package ocr

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/discordctx/internal/patterns"
	"github.com/nextlevelbuilder/discordctx/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultQueueSize and DefaultWorkerCount are the documented defaults (§4.7).
const (
	DefaultQueueSize   = 100
	DefaultWorkerCount = 2

	// EnqueueTimeout bounds how long a bounded put waits before the
	// candidate is rejected (§4.7, §5).
	EnqueueTimeout = 5 * time.Second

	// HighWatermarkWarnRatio is the occupancy fraction that triggers a
	// backpressure warning log (§5).
	HighWatermarkWarnRatio = 0.9
)

// Candidate is one OCR-eligible message admitted to the queue.
type Candidate struct {
	GuildID   string
	ChannelID string
	MessageID string
	ImageURL  string

	// CorrelationID ties this candidate's admission, queueing, and routing
	// log lines together across the worker pool; assigned at enqueue time
	// if the caller didn't already set one.
	CorrelationID string
}

// Recognizer runs OCR over an image URL in the given language, returning the
// recognised text. Tesseract itself is an external collaborator (§1); this
// interface is the only surface the pipeline depends on.
type Recognizer interface {
	Recognize(ctx context.Context, imageURL, language string) (string, error)
}

// Responder is the chat-platform boundary surface the pipeline needs to
// route OCR responses (§6): reply in place, send a standalone message, and
// react to acknowledge a rejected candidate.
type Responder interface {
	ReplyToMessage(ctx context.Context, channelID, messageID, text string) error
	SendMessage(ctx context.Context, channelID, text string) (messageID string, err error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// Stats are the bounded-queue observability counters (§4.7, §8).
type Stats struct {
	TotalEnqueued  int64
	TotalProcessed int64
	TotalRejected  int64
	HighWatermark  int64
}

// Pipeline is the OCRPipeline (§4.7): a bounded FIFO queue plus N workers.
type Pipeline struct {
	queue      chan Candidate
	maxSize    int
	recognizer Recognizer
	matcher    *patterns.Matcher
	responder  Responder
	configs    *ConfigStore

	enqueued  atomic.Int64
	processed atomic.Int64
	rejected  atomic.Int64
	watermark atomic.Int64
}

// New creates a Pipeline with a bounded queue of maxSize (0 = DefaultQueueSize).
func New(maxSize int, recognizer Recognizer, matcher *patterns.Matcher, responder Responder, configs *ConfigStore) *Pipeline {
	if maxSize <= 0 {
		maxSize = DefaultQueueSize
	}
	return &Pipeline{
		queue:      make(chan Candidate, maxSize),
		maxSize:    maxSize,
		recognizer: recognizer,
		matcher:    matcher,
		responder:  responder,
		configs:    configs,
	}
}

// Enqueue performs a bounded put with a 5-second timeout (§4.7, §5). On
// admission it updates total_enqueued/high_watermark and returns true; on
// timeout it reacts with an hourglass, bumps total_rejected, and returns false.
func (p *Pipeline) Enqueue(ctx context.Context, c Candidate) bool {
	if c.CorrelationID == "" {
		c.CorrelationID = uuid.New().String()
	}
	timer := time.NewTimer(EnqueueTimeout)
	defer timer.Stop()

	select {
	case p.queue <- c:
		p.enqueued.Add(1)
		p.observeOccupancy()
		slog.Debug("ocr: candidate admitted", "correlation_id", c.CorrelationID, "channel_id", c.ChannelID, "message_id", c.MessageID)
		return true
	case <-timer.C:
		p.rejected.Add(1)
		slog.Warn("ocr: enqueue timed out, rejecting candidate", "correlation_id", c.CorrelationID, "channel_id", c.ChannelID, "message_id", c.MessageID)
		if p.responder != nil {
			if err := p.responder.AddReaction(ctx, c.ChannelID, c.MessageID, "⏳"); err != nil {
				slog.Error("ocr: failed to react to rejected candidate", "correlation_id", c.CorrelationID, "error", err)
			}
		}
		return false
	case <-ctx.Done():
		p.rejected.Add(1)
		return false
	}
}

func (p *Pipeline) observeOccupancy() {
	occ := int64(len(p.queue))
	for {
		cur := p.watermark.Load()
		if occ <= cur {
			break
		}
		if p.watermark.CompareAndSwap(cur, occ) {
			break
		}
	}
	if float64(occ)/float64(p.maxSize) >= HighWatermarkWarnRatio {
		slog.Warn("ocr: queue nearing capacity", "occupancy", occ, "max_size", p.maxSize)
	}
}

// Run spawns workerCount workers (0 = DefaultWorkerCount) draining the queue
// until ctx is cancelled or the queue is closed. It blocks until all workers
// have exited.
func (p *Pipeline) Run(ctx context.Context, workerCount int) error {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		workerID := i
		g.Go(func() error {
			p.runWorker(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) runWorker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, c)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, c Candidate) {
	ctx, span := telemetry.StartSpan(ctx, "ocr.process",
		attribute.String("channel_id", c.ChannelID),
		attribute.String("message_id", c.MessageID),
		attribute.String("correlation_id", c.CorrelationID),
	)
	defer span.End()
	defer p.processed.Add(1)

	cfg := p.configs.ChannelConfig(c.GuildID, c.ChannelID)
	text, err := p.recognizer.Recognize(ctx, c.ImageURL, cfg.Language)
	if err != nil {
		telemetry.RecordError(span, err)
		slog.Error("ocr: recognition failed", "correlation_id", c.CorrelationID, "channel_id", c.ChannelID, "message_id", c.MessageID, "error", err)
		return
	}
	if text == "" {
		slog.Debug("ocr: no text found in image", "correlation_id", c.CorrelationID, "channel_id", c.ChannelID, "message_id", c.MessageID)
		return
	}

	response := text
	if resp, matched := p.matcher.Match(c.GuildID, text); matched {
		response = resp.Response
		slog.Info("ocr: pattern matched", "correlation_id", c.CorrelationID, "response_id", resp.ResponseID, "channel_id", c.ChannelID)
	} else {
		slog.Info("ocr: no pattern matched, echoing raw text", "correlation_id", c.CorrelationID, "channel_id", c.ChannelID)
	}

	if err := Route(ctx, p.responder, p.configs, c, response); err != nil {
		telemetry.RecordError(span, err)
		slog.Error("ocr: failed to route response", "correlation_id", c.CorrelationID, "channel_id", c.ChannelID, "message_id", c.MessageID, "error", err)
	}
}

// StatsSnapshot reports a point-in-time copy of the pipeline counters.
func (p *Pipeline) StatsSnapshot() Stats {
	return Stats{
		TotalEnqueued:  p.enqueued.Load(),
		TotalProcessed: p.processed.Load(),
		TotalRejected:  p.rejected.Load(),
		HighWatermark:  p.watermark.Load(),
	}
}
