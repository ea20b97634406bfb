// Package ingestor accepts persistent duplex connections from transcription
// workers and turns inbound segment frames into durable TranscriptSegment
// rows, deduplicated and filtered per the informativeness rule.
package ingestor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/meetbot/platform/internal/apperr"
	"github.com/meetbot/platform/internal/circuitbreaker"
	dbpkg "github.com/meetbot/platform/internal/db"
	"github.com/meetbot/platform/internal/lockstore"
	"github.com/meetbot/platform/internal/metrics"
)

// InboundSegment is one element of an inbound frame's segments array.
// StartTime and EndTime are pointers so an omitted field can be told apart
// from an explicit 0.0, per rule 1 of §4.7.
type InboundSegment struct {
	StartTime *float64 `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
	Text      string   `json:"text"`
	Language  *string  `json:"language,omitempty"`
	Completed bool     `json:"completed"`
}

// InboundFrame is the closed schema accepted on the duplex endpoint.
type InboundFrame struct {
	MeetingID int64            `json:"meeting_id"`
	Segments  []InboundSegment `json:"segments"`
}

var letter = regexp.MustCompile(`\p{L}`)

var fillers = map[string]struct{}{
	"thank you.": {},
	"thank you":  {},
	".":          {},
}

// informative implements the closed-set filter of §7: non-empty, not a
// filler, and containing at least one letter (a bare number or punctuation
// run is not informative).
func informative(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" {
		return false
	}
	if _, isFiller := fillers[trimmed]; isFiller {
		return false
	}
	return letter.MatchString(trimmed)
}

// Config carries the dedup/partial TTLs.
type Config struct {
	DedupTTLCompleted time.Duration
	DedupTTLPartial   time.Duration
}

// Processor implements §4.7 segment processing.
type Processor struct {
	db     *sqlx.DB
	dbc    *dbpkg.Client
	locks  *lockstore.Store
	logger *zap.Logger
	cfg    Config
}

func NewProcessor(db *sqlx.DB, dbc *dbpkg.Client, locks *lockstore.Store, logger *zap.Logger, cfg Config) *Processor {
	return &Processor{db: db, dbc: dbc, locks: locks, logger: logger, cfg: cfg}
}

// ProcessFrame validates, dedups, filters, and commits one inbound frame in
// a single transaction per message.
func (p *Processor) ProcessFrame(ctx context.Context, frame InboundFrame) error {
	if frame.MeetingID == 0 {
		return apperr.New(apperr.IngestionMalformed, "missing meeting_id")
	}

	var toPersist []InboundSegment
	for _, seg := range frame.Segments {
		if seg.Text == "" || seg.StartTime == nil || seg.EndTime == nil {
			continue // dropped per rule 1: missing fields
		}
		start, end := *seg.StartTime, *seg.EndTime

		if !seg.Completed {
			if err := p.locks.CachePartial(ctx, frame.MeetingID, start, end, seg.Text, p.cfg.DedupTTLPartial); err != nil {
				p.logger.Error("partial cache write failed", zap.Error(err))
			}
			continue
		}

		seen, err := p.locks.SeenSegment(ctx, frame.MeetingID, start, end)
		if err != nil {
			return err
		}
		if seen {
			metrics.SegmentsDeduped.WithLabelValues("dedup_key_hit").Inc()
			continue
		}

		if !informative(seg.Text) {
			metrics.SegmentsFiltered.WithLabelValues("non_informative").Inc()
			_ = p.locks.MarkSegment(ctx, frame.MeetingID, start, end, p.cfg.DedupTTLCompleted)
			continue
		}

		toPersist = append(toPersist, seg)
	}

	if len(toPersist) == 0 {
		return nil
	}

	err := p.dbc.WithTransaction(ctx, func(tx *circuitbreaker.TxWrapper) error {
		for _, seg := range toPersist {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transcript_segments (meeting_id, start_time, end_time, text, language, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
				ON CONFLICT (meeting_id, start_time, end_time) DO NOTHING`,
				frame.MeetingID, *seg.StartTime, *seg.EndTime, seg.Text, seg.Language); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.BackingStoreUnavailable, "segment batch insert failed", err)
	}

	for _, seg := range toPersist {
		if err := p.locks.MarkSegment(ctx, frame.MeetingID, *seg.StartTime, *seg.EndTime, p.cfg.DedupTTLCompleted); err != nil {
			p.logger.Error("dedup key write failed after insert", zap.Error(err))
		}
	}
	metrics.SegmentsIngested.Add(float64(len(toPersist)))

	return nil
}
