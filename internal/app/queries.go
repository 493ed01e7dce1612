package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corey/thoughts/internal/adapters/socket"
	"github.com/corey/thoughts/internal/domain/extract"
	"github.com/corey/thoughts/internal/domain/ledger"
	"github.com/corey/thoughts/internal/domain/scan"
	"github.com/corey/thoughts/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var _ socket.AppQueries = (*App)(nil)

// publishConcurrency bounds chart renders in PublishAll.
const publishConcurrency = 4

func normalize(id ports.AuthorID) (ports.AuthorID, error) {
	return ports.NormalizeAuthorID(string(id))
}

// beginWrite admits one ledger write from outside a scan. The returned
// release must be called once the write is persisted. While a scan owns the
// ledger it fails with scan.ErrScanInProgress.
func (a *App) beginWrite() (release func(), err error) {
	a.writes.RLock()
	if a.Scanner.Scanning() {
		a.writes.RUnlock()
		return nil, scan.ErrScanInProgress
	}
	return a.writes.RUnlock, nil
}

// scanRecorder is the engine as seen by a scan. Resetting the segment waits
// for writes admitted before the scan started, and the scan state is already
// Scanning by then, so no later write can be admitted.
type scanRecorder struct{ a *App }

func (r scanRecorder) ResetAuthorSegment(author ports.AuthorID) (*ports.ThoughtMap, error) {
	r.a.writes.Lock()
	defer r.a.writes.Unlock()
	return r.a.Engine.ResetAuthorSegment(author)
}

func (r scanRecorder) RecordOccurrence(author ports.AuthorID, phrase string) (int, error) {
	return r.a.Engine.RecordOccurrence(author, phrase)
}

// newScanner builds a coordinator over src that replays into a.Engine.
func (a *App) newScanner(src ports.MessageSource, pacing time.Duration) *scan.Coordinator {
	return scan.New(scan.Config{
		Source:   src,
		Recorder: scanRecorder{a: a},
		Logger:   a.log.Named("scan"),
		Pacing:   pacing,
	})
}

// onLiveMessage is the inbox callback.
func (a *App) onLiveMessage(msg ports.LiveMessage) {
	res, err := a.Ingest(a.ctx, msg.Message)
	if err != nil {
		a.log.Warn("ingest failed",
			zap.String("author", string(msg.AuthorID)),
			zap.String("channel", msg.Channel),
			zap.Error(err))
		return
	}
	if res.Suppressed {
		return
	}
	for _, p := range res.Phrases {
		a.log.Info("recorded thought",
			zap.String("author", a.DisplayName(msg.AuthorID)),
			zap.String("channel", msg.Channel),
			zap.String("phrase", p))
	}
}

// Ingest records every phrase in a live message. Bot messages are ignored.
// While a scan runs the phrases are extracted but not recorded.
func (a *App) Ingest(ctx context.Context, msg ports.Message) (socket.IngestResult, error) {
	if msg.Bot {
		return socket.IngestResult{Ignored: true}, nil
	}
	author, err := normalize(msg.AuthorID)
	if err != nil {
		return socket.IngestResult{}, err
	}
	a.learnName(author, msg.AuthorName)

	res := socket.IngestResult{Phrases: extract.Phrases(msg.Text)}
	if len(res.Phrases) == 0 {
		return res, nil
	}
	release, err := a.beginWrite()
	if err != nil {
		res.Suppressed = true
		a.Metrics.Suppressed.Add(float64(len(res.Phrases)))
		a.log.Debug("scan running, live message dropped",
			zap.String("author", string(author)),
			zap.Int("phrases", len(res.Phrases)))
		return res, nil
	}
	defer release()
	for _, p := range res.Phrases {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := a.Engine.RecordOccurrence(author, p); err != nil {
			return res, fmt.Errorf("record %q: %w", p, err)
		}
		res.Recorded++
		a.Metrics.Recorded.Inc()
	}
	return res, nil
}

// Add records one occurrence of phrase for author and republishes the
// author's chart. Returns the new count. Refused while a scan runs.
func (a *App) Add(author ports.AuthorID, phrase string) (int, error) {
	author, err := normalize(author)
	if err != nil {
		return 0, err
	}
	release, err := a.beginWrite()
	if err != nil {
		return 0, err
	}
	n, err := a.Engine.RecordOccurrence(author, phrase)
	release()
	if err != nil {
		return 0, err
	}
	a.Metrics.Recorded.Inc()
	if err := a.Publish(a.ctx, author); err != nil && !errors.Is(err, scan.ErrScanInProgress) {
		a.log.Warn("publish after add", zap.String("author", string(author)), zap.Error(err))
	}
	return n, nil
}

// RemoveOccurrence removes one occurrence of phrase. Refused while a scan
// runs.
func (a *App) RemoveOccurrence(_ context.Context, author ports.AuthorID, phrase string) (socket.CountResult, error) {
	author, err := normalize(author)
	if err != nil {
		return socket.CountResult{}, err
	}
	release, err := a.beginWrite()
	if err != nil {
		return socket.CountResult{}, err
	}
	defer release()
	n, removed, err := a.Engine.RemoveOneOccurrence(author, phrase)
	return socket.CountResult{Count: n, Removed: removed}, err
}

// RenamePhrase merges oldPhrase into newPhrase. Refused while a scan runs.
func (a *App) RenamePhrase(_ context.Context, author ports.AuthorID, oldPhrase, newPhrase string) (socket.CountResult, error) {
	author, err := normalize(author)
	if err != nil {
		return socket.CountResult{}, err
	}
	release, err := a.beginWrite()
	if err != nil {
		return socket.CountResult{}, err
	}
	defer release()
	n, err := a.Engine.RenameAndMerge(author, oldPhrase, newPhrase)
	return socket.CountResult{Count: n}, err
}

// Snapshot returns a copy of author's entries with their display name.
func (a *App) Snapshot(author ports.AuthorID) (socket.SnapshotResult, error) {
	author, err := normalize(author)
	if err != nil {
		return socket.SnapshotResult{}, err
	}
	return socket.SnapshotResult{
		Author:  author,
		Name:    a.DisplayName(author),
		Entries: a.Engine.Snapshot(author),
	}, nil
}

// Render regenerates and publishes author's chart. Refused while a scan
// rebuilds the ledger.
func (a *App) Render(_ context.Context, author ports.AuthorID) (ports.Artifact, error) {
	author, err := normalize(author)
	if err != nil {
		return ports.Artifact{}, err
	}
	if a.Scanner.Scanning() {
		return ports.Artifact{}, scan.ErrScanInProgress
	}
	return a.Renderer.RenderAuthor(author, a.DisplayName(author), a.Engine.Snapshot(author))
}

// RenderAll regenerates and publishes the combined chart.
func (a *App) RenderAll(context.Context) (ports.Artifact, error) {
	if a.Scanner.Scanning() {
		return ports.Artifact{}, scan.ErrScanInProgress
	}
	l := a.Engine.Ledger()
	return a.Renderer.RenderAll(a.names(l), l)
}

// Publish regenerates author's chart, discarding the artifact. An author
// with no entries is not an error.
func (a *App) Publish(ctx context.Context, author ports.AuthorID) error {
	_, err := a.Render(ctx, author)
	if errors.Is(err, ports.ErrNoData) {
		return nil
	}
	return err
}

// PublishAll regenerates every author's chart and the combined chart.
func (a *App) PublishAll(ctx context.Context) error {
	l := a.Engine.Ledger()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(publishConcurrency)
	for _, id := range l.Authors() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return a.Publish(ctx, id)
		})
	}
	g.Go(func() error {
		_, err := a.RenderAll(ctx)
		if errors.Is(err, ports.ErrNoData) {
			return nil
		}
		return err
	})
	return g.Wait()
}

// Rescan rebuilds author's segment from the corpus. It blocks until the scan
// finishes and returns scan.ErrScanInProgress if one is already running.
func (a *App) Rescan(ctx context.Context, author ports.AuthorID) (socket.RescanResult, error) {
	author, err := normalize(author)
	if err != nil {
		return socket.RescanResult{}, err
	}
	res, err := a.Scanner.StartScan(ctx, author)
	if errors.Is(err, scan.ErrScanInProgress) {
		a.Metrics.Scans.WithLabelValues(scanRejected).Inc()
		return socket.RescanResult{}, err
	}

	out := socket.RescanResult{
		Author:           res.Author,
		Matched:          res.Matched,
		Messages:         res.Messages,
		Partitions:       res.Partitions,
		FailedPartitions: res.FailedPartitions,
		Elapsed:          res.Elapsed.String(),
	}
	a.Metrics.PartitionFailures.Add(float64(len(res.FailedPartitions)))
	if err != nil {
		a.Metrics.Scans.WithLabelValues(scanFailed).Inc()
		return out, err
	}
	a.Metrics.Scans.WithLabelValues(scanOK).Inc()

	a.mu.Lock()
	a.lastScan = &out
	a.mu.Unlock()

	if err := a.Publish(ctx, author); err != nil {
		a.log.Warn("publish after rescan", zap.String("author", string(author)), zap.Error(err))
	}
	return out, nil
}

// Status summarizes the daemon and ledger.
func (a *App) Status() socket.StatusResult {
	totals := ledger.Totals(a.Engine.Ledger())
	st := socket.StatusResult{
		State:      a.Scanner.State().String(),
		Authors:    totals,
		Corpus:     a.Settings.CorpusDir,
		Inbox:      a.Settings.Inbox,
		PublishDir: a.Settings.PublishDir,
		Uptime:     a.uptime(),
	}
	if st.Authors == nil {
		st.Authors = []ledger.AuthorTotal{}
	}
	for _, t := range totals {
		st.Phrases += t.Phrases
		st.Occurrences += t.Total
	}
	if a.WebServer != nil {
		st.HTTPPort = a.WebServer.Port()
	}
	a.mu.Lock()
	if a.lastScan != nil {
		last := *a.lastScan
		st.LastScan = &last
	}
	a.mu.Unlock()
	return st
}

// Wipe deletes the whole ledger. Refused while a scan runs.
func (a *App) Wipe() error {
	release, err := a.beginWrite()
	if err != nil {
		return err
	}
	defer release()
	if err := a.Engine.Wipe(); err != nil {
		return err
	}
	a.log.Info("ledger wiped")
	return nil
}
