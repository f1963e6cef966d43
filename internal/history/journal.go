package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Journal defaults.
const (
	DefaultQueueSize = 256

	// drainTimeout bounds the final flush on Stop.
	drainTimeout = 5 * time.Second
)

// JournalOptions configures a Journal.
type JournalOptions struct {
	// MinInterval is the minimum spacing between journaled snapshots.
	// Zero journals every sensor update.
	MinInterval time.Duration

	// Retention is how many entries are kept. Zero keeps everything.
	Retention int

	// QueueSize bounds pending writes. Defaults to DefaultQueueSize.
	QueueSize int

	Logger Logger

	// Now overrides the clock used for sampling and timestamps.
	Now func() time.Time
}

// JournalStats holds journal counters.
type JournalStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Skipped uint64 `json:"skipped"`
	Failed  uint64 `json:"failed"`
	Pruned  uint64 `json:"pruned"`
}

// Journal samples store snapshots into a Repository.
//
// Thread Safety: the store subscriber only enqueues; a single goroutine
// started by Start performs all repository writes.
type Journal struct {
	repo      Repository
	retention int
	sampler   *sampler
	logger    Logger

	queue chan Entry
	done  chan struct{}
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	sincePrune int

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
	pruned  atomic.Uint64
}

// NewJournal creates a journal writing to repo.
func NewJournal(repo Repository, opts JournalOptions) *Journal {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Retention < 0 {
		opts.Retention = 0
	}
	return &Journal{
		repo:      repo,
		retention: opts.Retention,
		sampler:   newSampler(opts.MinInterval, opts.Now),
		logger:    opts.Logger,
		queue:     make(chan Entry, opts.QueueSize),
		done:      make(chan struct{}),
	}
}

// Attach subscribes the journal to src and returns the unsubscribe function.
func (j *Journal) Attach(src Source) (detach func()) {
	return src.Subscribe(func() {
		j.observe(src)
	})
}

func (j *Journal) observe(src Source) {
	st := src.GetState()
	at, ok := j.sampler.admit(st)
	if !ok {
		return
	}

	entry := Entry{
		RecordedAt: at,
		Seq:        st.SensorSeq,
		DevicePath: devicePath(st),
		Snapshot:   st.Sensor,
	}
	select {
	case j.queue <- entry:
	default:
		if j.dropped.Add(1) == 1 {
			j.logWarn("journal queue full, dropping samples", "capacity", cap(j.queue))
		}
	}
}

// Start launches the writer goroutine. Subsequent calls are no-ops.
func (j *Journal) Start(ctx context.Context) {
	j.startOnce.Do(func() {
		j.wg.Add(1)
		go j.run(ctx)
	})
}

// Stop flushes queued entries and waits for the writer. Safe to call
// multiple times and without Start.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
	})
	j.wg.Wait()
}

// Stats returns current journal counters.
func (j *Journal) Stats() JournalStats {
	return JournalStats{
		Written: j.written.Load(),
		Dropped: j.dropped.Load(),
		Skipped: j.sampler.skippedCount(),
		Failed:  j.failed.Load(),
		Pruned:  j.pruned.Load(),
	}
}

func (j *Journal) run(ctx context.Context) {
	defer j.wg.Done()

	for {
		select {
		case <-ctx.Done():
			j.drain(ctx)
			return
		case <-j.done:
			j.drain(ctx)
			return
		case e := <-j.queue:
			j.write(ctx, e)
		}
	}
}

// drain writes whatever is still queued, bounded by drainTimeout.
func (j *Journal) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	for {
		select {
		case e := <-j.queue:
			j.write(drainCtx, e)
		default:
			j.prune(drainCtx)
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, e Entry) {
	if err := j.repo.Create(ctx, &e); err != nil {
		j.failed.Add(1)
		j.logError("journal write failed", err, "seq", e.Seq)
		return
	}
	j.written.Add(1)

	if j.retention == 0 {
		return
	}
	j.sincePrune++
	if j.sincePrune >= max(1, j.retention/10) {
		j.prune(ctx)
	}
}

func (j *Journal) prune(ctx context.Context) {
	if j.retention == 0 || j.sincePrune == 0 {
		return
	}
	j.sincePrune = 0
	n, err := j.repo.Prune(ctx, j.retention)
	if err != nil {
		j.logError("journal prune failed", err)
		return
	}
	if n > 0 {
		j.pruned.Add(uint64(n))
		j.logDebug("journal pruned", "rows", n, "retention", j.retention)
	}
}

func (j *Journal) logDebug(msg string, keysAndValues ...any) {
	if j.logger != nil {
		j.logger.Debug(msg, keysAndValues...)
	}
}

func (j *Journal) logWarn(msg string, keysAndValues ...any) {
	if j.logger != nil {
		j.logger.Warn(msg, keysAndValues...)
	}
}

func (j *Journal) logError(msg string, err error, keysAndValues ...any) {
	if j.logger != nil {
		j.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
