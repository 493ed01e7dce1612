package app

import (
	"context"
	"encoding/json"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/corey/thoughts/internal/adapters/socket"
	"github.com/corey/thoughts/internal/domain/scan"
	"github.com/corey/thoughts/internal/ports"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestApp creates an App under a temp project root with the dashboard
// disabled and no scan pacing. extra is appended to config.yaml.
func newTestApp(t *testing.T, extra string) *App {
	t.Helper()
	root := t.TempDir()
	p := NewPaths(root)
	require.NoError(t, p.EnsureDirs())
	cfg := "http_port: -1\npacing: 0s\n" + extra
	require.NoError(t, os.WriteFile(p.Config, []byte(cfg), 0o644))

	a, err := New(Config{
		ProjectRoot: root,
		SocketPath:  filepath.Join(root, "d.sock"),
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Stop() })
	return a
}

// writeCorpus writes one channel file under the app's corpus dir.
func writeCorpus(t *testing.T, a *App, group, channel string, msgs ...ports.Message) {
	t.Helper()
	dir := filepath.Join(a.Settings.CorpusDir, group)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	var sb strings.Builder
	for _, m := range msgs {
		data, err := json.Marshal(m)
		require.NoError(t, err)
		sb.Write(data)
		sb.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, channel+".jsonl"), []byte(sb.String()), 0o644))
}

func counts(a *App, author ports.AuthorID) []ports.Entry {
	return a.Engine.Snapshot(author).Entries()
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestIngest_EndToEnd(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()
	msg := ports.Message{AuthorID: "42", AuthorName: "Bob", Text: "Sometimes I think about cats."}

	res, err := a.Ingest(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"cats"}, res.Phrases)
	assert.Equal(t, 1, res.Recorded)
	assert.Equal(t, []ports.Entry{{Phrase: "cats", Count: 1}}, counts(a, "42"))

	_, err = a.Ingest(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, []ports.Entry{{Phrase: "cats", Count: 2}}, counts(a, "42"))

	for range 2 {
		_, err = a.RemoveOccurrence(ctx, "42", "cats")
		require.NoError(t, err)
	}
	_, present := a.Engine.Ledger()["42"]
	assert.False(t, present, "author entry removed when emptied")

	_, err = a.Add("42", "dogs")
	require.NoError(t, err)
	cr, err := a.RenamePhrase(ctx, "42", "dogs", "cats")
	require.NoError(t, err)
	assert.Equal(t, 1, cr.Count)
	assert.Equal(t, []ports.Entry{{Phrase: "cats", Count: 1}}, counts(a, "42"))

	assert.Equal(t, float64(3), testutil.ToFloat64(a.Metrics.Recorded))
	assert.Equal(t, "Bob", a.DisplayName("42"))
}

func TestIngest_IgnoresBotsAndBadAuthors(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()

	res, err := a.Ingest(ctx, ports.Message{AuthorID: "42", Text: "sometimes i think about cats", Bot: true})
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, 0, a.Engine.Snapshot("42").Len())

	_, err = a.Ingest(ctx, ports.Message{AuthorID: "bob", Text: "sometimes i think about cats"})
	assert.ErrorIs(t, err, ports.ErrInvalidAuthorID)

	res, err = a.Ingest(ctx, ports.Message{AuthorID: "42", Text: "nothing to see"})
	require.NoError(t, err)
	assert.Empty(t, res.Phrases)
	assert.Equal(t, 0, res.Recorded)
}

// blockingSource holds a scan inside Partitions until released.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSource) Partitions(ctx context.Context) ([]ports.Partition, error) {
	close(s.entered)
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

func (s *blockingSource) Messages(context.Context, ports.Partition) iter.Seq2[ports.Message, error] {
	return func(func(ports.Message, error) bool) {}
}

func TestIngest_SuppressedWhileScanning(t *testing.T) {
	a := newTestApp(t, "")
	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	a.Scanner = a.newScanner(src, -1)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := a.Rescan(ctx, "7")
		done <- err
	}()
	<-src.entered

	res, err := a.Ingest(ctx, ports.Message{AuthorID: "42", Text: "sometimes I think about rain"})
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.Equal(t, 0, res.Recorded)
	assert.Equal(t, 0, a.Engine.Snapshot("42").Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(a.Metrics.Suppressed))

	_, err = a.Rescan(ctx, "42")
	assert.ErrorIs(t, err, scan.ErrScanInProgress)
	_, err = a.Render(ctx, "42")
	assert.ErrorIs(t, err, scan.ErrScanInProgress)
	assert.ErrorIs(t, a.Wipe(), scan.ErrScanInProgress)
	assert.Equal(t, "scanning", a.Status().State)

	close(src.release)
	require.NoError(t, <-done)
	assert.Equal(t, float64(1), testutil.ToFloat64(a.Metrics.Scans.WithLabelValues(scanRejected)))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.Metrics.Scans.WithLabelValues(scanOK)))

	res, err = a.Ingest(ctx, ports.Message{AuthorID: "42", Text: "sometimes I think about rain"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recorded)
}

func TestManualEdits_RefusedWhileScanning(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()
	_, err := a.Add("42", "cats")
	require.NoError(t, err)

	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	a.Scanner = a.newScanner(src, -1)
	done := make(chan error, 1)
	go func() {
		_, err := a.Rescan(ctx, "42")
		done <- err
	}()
	<-src.entered

	_, err = a.Add("42", "manual")
	assert.ErrorIs(t, err, scan.ErrScanInProgress)
	_, err = a.RemoveOccurrence(ctx, "42", "cats")
	assert.ErrorIs(t, err, scan.ErrScanInProgress)
	_, err = a.RenamePhrase(ctx, "42", "cats", "dogs")
	assert.ErrorIs(t, err, scan.ErrScanInProgress)
	assert.Equal(t, float64(1), testutil.ToFloat64(a.Metrics.Recorded), "only the edit before the scan counted")

	close(src.release)
	require.NoError(t, <-done)
	assert.Empty(t, counts(a, "42"), "rescan of an empty corpus equals an empty replay")

	_, err = a.Add("42", "manual")
	assert.NoError(t, err)
}

func TestRescan_RebuildsFromCorpus(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()
	writeCorpus(t, a, "guild", "general",
		ports.Message{AuthorID: "42", Text: "Sometimes I think about cats."},
		ports.Message{AuthorID: "7", Text: "sometimes i think about trains"},
		ports.Message{AuthorID: "42", Text: "sometimes I think a lot about cats. And sometimes I think about rain"},
	)
	writeCorpus(t, a, "guild", "random",
		ports.Message{AuthorID: "42", Text: "sometimes i think about cats", Bot: false},
	)

	// Stale data is replaced, not added to.
	_, err := a.Add("42", "stale")
	require.NoError(t, err)

	res, err := a.Rescan(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Matched)
	assert.Equal(t, 2, res.Partitions)
	assert.Equal(t, 4, res.Messages)
	assert.Equal(t, []ports.Entry{{Phrase: "cats", Count: 3}, {Phrase: "rain", Count: 1}}, counts(a, "42"))
	assert.Equal(t, 0, a.Engine.Snapshot("7").Len(), "only the requested author is rebuilt")

	// Replaying the same corpus again yields the same counts.
	_, err = a.Rescan(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []ports.Entry{{Phrase: "cats", Count: 3}, {Phrase: "rain", Count: 1}}, counts(a, "42"))

	st := a.Status()
	require.NotNil(t, st.LastScan)
	assert.Equal(t, ports.AuthorID("42"), st.LastScan.Author)
	assert.Equal(t, "idle", st.State)

	_, err = os.Stat(filepath.Join(a.Settings.PublishDir, "42.txt"))
	assert.NoError(t, err, "rescan republishes the chart")
}

func TestRescan_SkipsBrokenPartition(t *testing.T) {
	a := newTestApp(t, "")
	writeCorpus(t, a, "a", "good", ports.Message{AuthorID: "42", Text: "sometimes i think about cats"})
	dir := filepath.Join(a.Settings.CorpusDir, "b")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jsonl"), []byte("{not json\n"), 0o644))

	res, err := a.Rescan(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	require.Len(t, res.FailedPartitions, 1)
	assert.Equal(t, "b", res.FailedPartitions[0].Partition.Group)
	assert.Equal(t, float64(1), testutil.ToFloat64(a.Metrics.PartitionFailures))
}

func TestRescan_MissingCorpusFails(t *testing.T) {
	a := newTestApp(t, "")
	_, err := a.Add("42", "cats")
	require.NoError(t, err)

	_, err = a.Rescan(context.Background(), "42")
	require.Error(t, err)
	assert.Equal(t, []ports.Entry{{Phrase: "cats", Count: 1}}, counts(a, "42"), "existing counts survive")
	assert.Equal(t, float64(1), testutil.ToFloat64(a.Metrics.Scans.WithLabelValues(scanFailed)))
	assert.Equal(t, "idle", a.Status().State)
}

func TestRender(t *testing.T) {
	a := newTestApp(t, "names:\n  \"42\": Bob\n")
	ctx := context.Background()

	_, err := a.Render(ctx, "42")
	assert.ErrorIs(t, err, ports.ErrNoData)
	_, err = a.RenderAll(ctx)
	assert.ErrorIs(t, err, ports.ErrNoData)
	_, err = a.Render(ctx, "bob")
	assert.ErrorIs(t, err, ports.ErrInvalidAuthorID)

	_, err = a.Add("42", "cats")
	require.NoError(t, err)
	_, err = a.Add("7", "dogs")
	require.NoError(t, err)

	art, err := a.Render(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Things Bob sometimes thinks about", art.Title)
	assert.Equal(t, filepath.Join(a.Settings.PublishDir, "42.txt"), art.Path)

	all, err := a.RenderAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, all.Body, "cats (Bob)")
	assert.Contains(t, all.Body, "dogs (User 7)")
}

func TestPublishAll(t *testing.T) {
	a := newTestApp(t, "")
	for _, id := range []ports.AuthorID{"1", "2", "3", "4", "5", "6"} {
		_, err := a.Engine.RecordOccurrence(id, "cats")
		require.NoError(t, err)
	}
	require.NoError(t, a.PublishAll(context.Background()))

	entries, err := os.ReadDir(a.Settings.PublishDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"1.txt", "2.txt", "3.txt", "4.txt", "5.txt", "6.txt", "all.txt"}, names)
}

func TestSnapshotStatusWipe(t *testing.T) {
	a := newTestApp(t, "")
	_, err := a.Add("0042", "cats")
	require.NoError(t, err)
	_, err = a.Add("42", "rain")
	require.NoError(t, err)
	_, err = a.Add("7", "rain")
	require.NoError(t, err)

	snap, err := a.Snapshot("42")
	require.NoError(t, err)
	assert.Equal(t, "User 42", snap.Name)
	assert.Equal(t, 2, snap.Entries.Len())

	st := a.Status()
	assert.Equal(t, 3, st.Phrases)
	assert.Equal(t, 3, st.Occurrences)
	require.Len(t, st.Authors, 2)
	assert.Equal(t, ports.AuthorID("7"), st.Authors[0].Author)

	require.NoError(t, a.Wipe())
	assert.Empty(t, a.Status().Authors)
}

func TestStartStop_ServesSocketAndInbox(t *testing.T) {
	a := newTestApp(t, "")
	require.NoError(t, a.Start())
	<-a.Inbox.Started()

	client := socket.NewClient(a.Server.Addr())
	n, err := client.Add(context.Background(), "42", "cats")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pid, err := os.ReadFile(a.Paths.PIDFile)
	require.NoError(t, err)
	assert.NotEmpty(t, pid)

	line := `{"author_id":"42","author_name":"Bob","text":"sometimes I think about cats","channel":"general"}` + "\n"
	f, err := os.OpenFile(a.Settings.Inbox, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return a.Engine.Snapshot("42").Count("cats") == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Bob", a.DisplayName("42"))

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
	assert.False(t, client.Ping())
	_, err = os.Stat(a.Paths.PIDFile)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_StopsOnRemoteShutdown(t *testing.T) {
	a := newTestApp(t, "")
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(context.Background()) }()

	client := socket.NewClient(a.Server.Addr())
	require.Eventually(t, client.Ping, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, client.Shutdown())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	a := newTestApp(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	client := socket.NewClient(a.Server.Addr())
	require.Eventually(t, client.Ping, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLegacyImport(t *testing.T) {
	root := t.TempDir()
	legacy := `{"42": {"cats": 3, "rain": 1}, "not-a-user": {"x": 1}, "7": {}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "thoughts.json"), []byte(legacy), 0o644))

	a, err := New(Config{ProjectRoot: root, SocketPath: filepath.Join(root, "d.sock"), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer a.Stop()

	assert.Equal(t, []ports.Entry{{Phrase: "cats", Count: 3}, {Phrase: "rain", Count: 1}}, counts(a, "42"))
	assert.Equal(t, []ports.AuthorID{"42"}, a.Engine.Ledger().Authors())

	_, err = os.Stat(filepath.Join(root, "thoughts.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "thoughts.json.imported"))
	assert.NoError(t, err)
}

func TestLegacyImport_DropsBlankPhrases(t *testing.T) {
	root := t.TempDir()
	legacy := `{"42": {"  ": 5, " cats": 2}, "7": {"": 1}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "thoughts.json"), []byte(legacy), 0o644))

	a, err := New(Config{ProjectRoot: root, SocketPath: filepath.Join(root, "d.sock"), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer a.Stop()

	assert.Equal(t, []ports.Entry{{Phrase: "cats", Count: 2}}, counts(a, "42"))
	assert.Equal(t, []ports.AuthorID{"42"}, a.Engine.Ledger().Authors(), "an author with only blank phrases is not imported")
}

func TestLegacyImport_SkipsWhenStoreHasData(t *testing.T) {
	a := newTestApp(t, "")
	_, err := a.Engine.RecordOccurrence("1", "tea")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(a.Paths.Legacy, []byte(`{"42":{"cats":1}}`), 0o644))

	n, err := importLegacy(a.Paths.Legacy, a.Store)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, err = os.Stat(a.Paths.Legacy)
	assert.NoError(t, err, "file left in place")
}
