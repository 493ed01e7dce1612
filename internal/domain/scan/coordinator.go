// Package scan rebuilds one author's ledger segment by replaying the
// historical message corpus.
//
// Only one scan may run at a time, system-wide. While a scan runs it owns
// the ledger: live ingestion must check Scanning() and drop its writes.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/corey/thoughts/internal/domain/extract"
	"github.com/corey/thoughts/internal/ports"
	"go.uber.org/zap"
)

// ErrScanInProgress is returned by StartScan while another scan is running.
var ErrScanInProgress = errors.New("scan already in progress")

// DefaultPacing is the pause after each partition.
const DefaultPacing = 500 * time.Millisecond

// State is the coordinator's single-flight state.
type State int32

const (
	Idle State = iota
	Scanning
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Recorder is the slice of the ledger engine a scan needs.
type Recorder interface {
	ResetAuthorSegment(author ports.AuthorID) (*ports.ThoughtMap, error)
	RecordOccurrence(author ports.AuthorID, phrase string) (int, error)
}

// PartitionFailure describes a partition skipped because of a source error.
type PartitionFailure struct {
	Partition ports.Partition `json:"partition"`
	Error     string          `json:"error"`
}

// Result summarizes a finished scan.
type Result struct {
	Author           ports.AuthorID     `json:"author"`
	Matched          int                `json:"matched"`
	Messages         int                `json:"messages"`
	Partitions       int                `json:"partitions"`
	FailedPartitions []PartitionFailure `json:"failed_partitions,omitempty"`
	Elapsed          time.Duration      `json:"elapsed"`
}

// Config holds coordinator dependencies.
type Config struct {
	Source   ports.MessageSource
	Recorder Recorder
	Logger   *zap.Logger

	// Pacing is the pause after each partition. Zero means DefaultPacing;
	// a negative value disables pacing.
	Pacing time.Duration

	// Sleep waits for d or until ctx is done. Defaults to a timer; tests
	// replace it to observe pacing without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Coordinator runs single-flight corpus rescans.
type Coordinator struct {
	source   ports.MessageSource
	recorder Recorder
	log      *zap.Logger
	pacing   time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	state atomic.Int32
}

// New creates an idle coordinator.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		source:   cfg.Source,
		recorder: cfg.Recorder,
		log:      cfg.Logger,
		pacing:   cfg.Pacing,
		sleep:    cfg.Sleep,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.pacing == 0 {
		c.pacing = DefaultPacing
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Scanning reports whether a scan is running. Ingestion consults this before
// every write.
func (c *Coordinator) Scanning() bool {
	return c.State() == Scanning
}

// StartScan rebuilds author's segment from the corpus and blocks until the
// replay finishes. It returns ErrScanInProgress without touching anything if
// a scan is already running. The coordinator always returns to Idle.
//
// Partitions are enumerated before the segment is reset, so a source that
// cannot be listed at all leaves the ledger untouched. Partition failures are
// logged and skipped. Only a failure to enumerate partitions, to reset the
// segment, or to persist an occurrence aborts the scan, as does ctx being
// cancelled.
func (c *Coordinator) StartScan(ctx context.Context, author ports.AuthorID) (Result, error) {
	if !c.state.CompareAndSwap(int32(Idle), int32(Scanning)) {
		return Result{}, ErrScanInProgress
	}
	defer c.state.Store(int32(Idle))

	start := time.Now()
	res := Result{Author: author}
	log := c.log.With(zap.String("author", string(author)))
	log.Info("scan started")

	// Enumerate first: a source that cannot list anything must not cost the
	// author their existing counts.
	partitions, err := c.source.Partitions(ctx)
	if err != nil {
		res.Elapsed = time.Since(start)
		return res, fmt.Errorf("enumerate partitions: %w", err)
	}

	if _, err := c.recorder.ResetAuthorSegment(author); err != nil {
		res.Elapsed = time.Since(start)
		return res, fmt.Errorf("reset segment: %w", err)
	}

	for _, p := range partitions {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		res.Partitions++

		matched, msgs, err := c.replay(ctx, author, p)
		res.Matched += matched
		res.Messages += msgs
		if err != nil {
			var fatal *recordError
			if errors.As(err, &fatal) {
				res.Elapsed = time.Since(start)
				return res, fatal.err
			}
			log.Warn("skipping partition", zap.Stringer("partition", p), zap.Error(err))
			res.FailedPartitions = append(res.FailedPartitions, PartitionFailure{Partition: p, Error: err.Error()})
		}

		if c.pacing > 0 {
			if err := c.sleep(ctx, c.pacing); err != nil {
				res.Elapsed = time.Since(start)
				return res, err
			}
		}
	}

	res.Elapsed = time.Since(start)
	log.Info("scan complete",
		zap.Int("matched", res.Matched),
		zap.Int("messages", res.Messages),
		zap.Int("partitions", res.Partitions),
		zap.Int("failed_partitions", len(res.FailedPartitions)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// recordError marks a ledger write failure, which aborts the scan instead of
// skipping the partition.
type recordError struct{ err error }

func (e *recordError) Error() string { return e.err.Error() }
func (e *recordError) Unwrap() error { return e.err }

// replay feeds one partition through the extractor. Occurrences recorded
// before a mid-stream source error are kept.
func (c *Coordinator) replay(ctx context.Context, author ports.AuthorID, p ports.Partition) (matched, msgs int, err error) {
	for msg, err := range c.source.Messages(ctx, p) {
		if err != nil {
			return matched, msgs, err
		}
		msgs++
		if msg.AuthorID != author {
			continue
		}
		for _, phrase := range extract.Phrases(msg.Text) {
			if _, err := c.recorder.RecordOccurrence(author, phrase); err != nil {
				return matched, msgs, &recordError{err: fmt.Errorf("record occurrence: %w", err)}
			}
			matched++
		}
	}
	return matched, msgs, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
