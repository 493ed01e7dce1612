package scan

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/corey/thoughts/internal/domain/ledger"
	"github.com/corey/thoughts/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is a clone-on-read LedgerStore.
type memStore struct {
	mu sync.Mutex
	l  ports.Ledger
}

func (s *memStore) Load() (ports.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.Clone(), nil
}

func (s *memStore) Save(l ports.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l = l.Clone()
	return nil
}

func (s *memStore) Wipe() error  { return nil }
func (s *memStore) Close() error { return nil }

// fakeSource serves fixed partitions. Partitions listed in failOpen error
// before yielding anything; failAfter errors after yielding n messages.
type fakeSource struct {
	partitions []ports.Partition
	messages   map[string][]ports.Message
	failOpen   map[string]bool
	failAfter  map[string]int
	listErr    error

	// gate, when set, blocks the first Messages call until closed.
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (f *fakeSource) Partitions(ctx context.Context) ([]ports.Partition, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.partitions, nil
}

func (f *fakeSource) Messages(ctx context.Context, p ports.Partition) iter.Seq2[ports.Message, error] {
	return func(yield func(ports.Message, error) bool) {
		if f.gate != nil {
			f.once.Do(func() { close(f.entered) })
			<-f.gate
		}
		if f.failOpen[p.Name] {
			yield(ports.Message{}, errors.New("403 forbidden"))
			return
		}
		for i, m := range f.messages[p.Name] {
			if n, ok := f.failAfter[p.Name]; ok && i == n {
				yield(ports.Message{}, errors.New("connection reset"))
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

func msg(author, text string) ports.Message {
	return ports.Message{AuthorID: ports.AuthorID(author), Text: text}
}

func testCorpus() *fakeSource {
	return &fakeSource{
		partitions: []ports.Partition{
			{Group: "g1", Name: "general"},
			{Group: "g1", Name: "random"},
			{Group: "g2", Name: "memes"},
		},
		messages: map[string][]ports.Message{
			"general": {
				msg("42", "Sometimes I think about cats."),
				msg("7", "sometimes i think about dogs"),
				msg("42", "hello there"),
			},
			"random": {
				msg("42", "sometimes I think a lot about cats. Sometimes I think about rain"),
			},
			"memes": {
				msg("42", "sometimes i think about frogs"),
			},
		},
	}
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func newTestCoordinator(t *testing.T, src ports.MessageSource) (*Coordinator, *ledger.Engine, *sleepRecorder) {
	t.Helper()
	store := &memStore{l: ports.Ledger{}}
	eng := ledger.NewEngine(store, nil)
	sl := &sleepRecorder{}
	c := New(Config{
		Source:   src,
		Recorder: eng,
		Logger:   zaptest.NewLogger(t),
		Pacing:   250 * time.Millisecond,
		Sleep:    sl.sleep,
	})
	return c, eng, sl
}

func TestStartScan_RebuildsSegment(t *testing.T) {
	c, eng, sl := newTestCoordinator(t, testCorpus())

	// Stale data is discarded by the rebuild; other authors are untouched.
	_, _ = eng.RecordOccurrence("42", "stale thought")
	_, _ = eng.RecordOccurrence("7", "dogs")

	res, err := c.StartScan(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, ports.AuthorID("42"), res.Author)
	assert.Equal(t, 4, res.Matched)
	assert.Equal(t, 5, res.Messages)
	assert.Equal(t, 3, res.Partitions)
	assert.Empty(t, res.FailedPartitions)
	assert.Equal(t, Idle, c.State())

	assert.Equal(t, []ports.Entry{
		{Phrase: "cats", Count: 2},
		{Phrase: "rain", Count: 1},
		{Phrase: "frogs", Count: 1},
	}, eng.Snapshot("42").Entries())
	assert.Equal(t, 1, eng.Snapshot("7").Count("dogs"))

	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}, sl.calls,
		"one pause after every partition")
}

func TestStartScan_ReplayIsIdempotent(t *testing.T) {
	c, eng, _ := newTestCoordinator(t, testCorpus())

	_, err := c.StartScan(context.Background(), "42")
	require.NoError(t, err)
	first := eng.Snapshot("42").Entries()

	_, err = c.StartScan(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, first, eng.Snapshot("42").Entries())
}

func TestStartScan_SkipsFailedPartitions(t *testing.T) {
	src := testCorpus()
	src.failOpen = map[string]bool{"general": true}
	src.failAfter = map[string]int{"random": 0}
	c, eng, _ := newTestCoordinator(t, src)

	res, err := c.StartScan(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Partitions)
	require.Len(t, res.FailedPartitions, 2)
	assert.Equal(t, "general", res.FailedPartitions[0].Partition.Name)
	assert.Equal(t, "403 forbidden", res.FailedPartitions[0].Error)
	assert.Equal(t, "random", res.FailedPartitions[1].Partition.Name)

	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, []ports.Entry{{Phrase: "frogs", Count: 1}}, eng.Snapshot("42").Entries())
	assert.Equal(t, Idle, c.State())
}

func TestStartScan_KeepsOccurrencesBeforeMidStreamError(t *testing.T) {
	src := testCorpus()
	src.messages["general"] = append(src.messages["general"], msg("42", "sometimes I think about bees"))
	src.failAfter = map[string]int{"general": 1}
	c, eng, _ := newTestCoordinator(t, src)

	res, err := c.StartScan(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, res.FailedPartitions, 1)
	assert.Equal(t, 2, eng.Snapshot("42").Count("cats"))
	assert.False(t, eng.Snapshot("42").Has("bees"))
}

func TestStartScan_EnumerationFailureReturnsToIdle(t *testing.T) {
	src := testCorpus()
	src.listErr = errors.New("gateway down")
	c, eng, _ := newTestCoordinator(t, src)
	_, err := eng.RecordOccurrence("42", "cats")
	require.NoError(t, err)

	_, err = c.StartScan(context.Background(), "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway down")
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 1, eng.Snapshot("42").Count("cats"), "segment is kept when nothing could be listed")
}

func TestStartScan_SingleFlight(t *testing.T) {
	src := testCorpus()
	src.gate = make(chan struct{})
	src.entered = make(chan struct{})
	c, eng, _ := newTestCoordinator(t, src)

	done := make(chan Result, 1)
	go func() {
		res, err := c.StartScan(context.Background(), "42")
		assert.NoError(t, err)
		done <- res
	}()

	<-src.entered
	assert.True(t, c.Scanning())

	// Any author is rejected while a scan runs.
	_, err := c.StartScan(context.Background(), "7")
	assert.ErrorIs(t, err, ErrScanInProgress)
	_, err = c.StartScan(context.Background(), "42")
	assert.ErrorIs(t, err, ErrScanInProgress)
	assert.Equal(t, Scanning, c.State(), "rejected scan leaves in-flight state untouched")

	close(src.gate)
	res := <-done
	assert.Equal(t, 4, res.Matched)
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 2, eng.Snapshot("42").Count("cats"))
}

func TestStartScan_ContextCancelled(t *testing.T) {
	c, _, _ := newTestCoordinator(t, testCorpus())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.StartScan(ctx, "42")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Idle, c.State())
}

func TestStartScan_DefaultSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleepCtx(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "scanning", Scanning.String())
}
