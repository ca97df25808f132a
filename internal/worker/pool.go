package worker

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FranksOps/securescan/internal/metrics"
	"github.com/FranksOps/securescan/internal/scan"
	"github.com/FranksOps/securescan/internal/scraper"
	"github.com/FranksOps/securescan/pkg/ratelimit"
	"golang.org/x/sync/semaphore"
)

// Config sizes the pool.
type Config struct {
	WorkerCount int // default 5
	// RateLimitDelay is the minimum spacing between HTTP dispatches,
	// shared by task dispatch and every probe request. Default 500ms.
	RateLimitDelay time.Duration
	// MaxConcurrent caps in-flight HTTP requests globally. Default 10.
	MaxConcurrent int64
	// DrainTimeout bounds how long Shutdown waits for active tasks.
	DrainTimeout time.Duration
}

const (
	DefaultWorkerCount    = 5
	DefaultRateLimitDelay = 500 * time.Millisecond
	DefaultMaxConcurrent  = 10
	defaultDrainTimeout   = 30 * time.Second
)

// pageScanner is the slice of scan.PageScanner the pool drives.
type pageScanner interface {
	Scan(ctx context.Context, page scan.Page) (scan.PageResult, error)
}

// Pool runs a fixed set of workers over a priority queue of tasks. A single
// driver goroutine owns all scheduling decisions: it dispatches a task only
// when the pool is open, an idle worker exists, the in-flight cap has room
// and the rate-limit interval has elapsed. A worker that panics fails its
// task with ErrWorkerCrashed and is replaced at the same index.
type Pool struct {
	cfg     Config
	fetcher *scraper.Fetcher
	scanner pageScanner
	limiter *ratelimit.Limiter
	sem     *semaphore.Weighted
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    taskQueue
	seq      uint64
	busy     []bool
	inflight int
	shutdown bool

	httpInFlight atomic.Int64

	notify chan struct{}
	assign []chan *taskEntry

	workerWg sync.WaitGroup
	driverWg sync.WaitGroup
}

type taskEntry struct {
	task   Task
	future chan Result
	seq    uint64
	index  int
}

// NewPool builds and starts the pool.
func NewPool(cfg Config, fetcher *scraper.Fetcher, logger *slog.Logger) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = DefaultRateLimitDelay
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: ratelimit.NewLimiter(cfg.RateLimitDelay, 0),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		busy:    make([]bool, cfg.WorkerCount),
		notify:  make(chan struct{}, 1),
		assign:  make([]chan *taskEntry, cfg.WorkerCount),
	}
	p.scanner = scan.NewPageScanner(&poolProber{p: p}, logger)

	for i := range p.assign {
		p.assign[i] = make(chan *taskEntry, 1)
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		p.workerWg.Add(1)
		go p.runWorker(i)
	}
	p.driverWg.Add(1)
	go p.drive()

	return p
}

// Limiter exposes the pool's dispatch limiter so the crawler shares the
// same request spacing as the probes.
func (p *Pool) Limiter() *ratelimit.Limiter { return p.limiter }

// Submit queues a task and returns a future that receives exactly one
// Result when the task settles.
func (p *Pool) Submit(task Task) <-chan Result {
	future := make(chan Result, 1)

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		future <- Result{TaskID: task.ID, WorkerID: -1, PageURL: task.Page.URL, Err: ErrPoolClosed}
		return future
	}
	p.seq++
	heap.Push(&p.queue, &taskEntry{task: task, future: future, seq: p.seq})
	p.mu.Unlock()

	p.kick()
	return future
}

// ScanPages submits one scan task per page and waits for all of them. Only
// successful results are returned; failed tasks count as pages that
// produced no findings.
func (p *Pool) ScanPages(ctx context.Context, scanID string, pages []scan.Page) []Result {
	futures := make([]<-chan Result, len(pages))
	for i, page := range pages {
		futures[i] = p.Submit(Task{
			ID:       TaskID(scanID, i),
			ScanID:   scanID,
			Kind:     KindScan,
			Page:     page,
			Priority: 1,
		})
	}

	results := make([]Result, 0, len(pages))
	for _, future := range futures {
		select {
		case res := <-future:
			if res.Ok() {
				results = append(results, res)
			}
		case <-ctx.Done():
			return results
		}
	}
	return results
}

// Stats reports a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := 0
	for _, b := range p.busy {
		if b {
			active++
		}
	}
	return Stats{
		WorkerCount: p.cfg.WorkerCount,
		Active:      active,
		Queued:      p.queue.Len(),
		InFlight:    int(p.httpInFlight.Load()),
	}
}

// Shutdown stops accepting work, drains active tasks for at most the drain
// timeout, rejects anything still queued and terminates the workers.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	pending := make([]*taskEntry, 0, p.queue.Len())
	for p.queue.Len() > 0 {
		pending = append(pending, heap.Pop(&p.queue).(*taskEntry))
	}
	p.mu.Unlock()

	for _, e := range pending {
		e.future <- Result{TaskID: e.task.ID, WorkerID: -1, PageURL: e.task.Page.URL, Err: ErrPoolClosed}
	}

	// Bounded drain: give active tasks a chance to settle before pulling
	// the plug on the workers.
	drained := make(chan struct{})
	go func() {
		for {
			p.mu.Lock()
			idle := p.inflight == 0
			p.mu.Unlock()
			if idle {
				close(drained)
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()
	select {
	case <-drained:
	case <-time.After(p.cfg.DrainTimeout):
		p.logger.Warn("pool drain timed out, terminating workers")
	}

	p.cancel()
	p.driverWg.Wait()
	p.workerWg.Wait()
}

func (p *Pool) kick() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// drive is the single scheduling loop.
func (p *Pool) drive() {
	defer p.driverWg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.notify:
		}

		for {
			if !p.dispatchable() {
				break
			}
			// Enforce dispatch spacing outside the lock.
			if err := p.limiter.Wait(p.ctx); err != nil {
				return
			}

			p.mu.Lock()
			w := p.idleWorker()
			if p.shutdown || p.queue.Len() == 0 || p.inflight >= int(p.cfg.MaxConcurrent) || w < 0 {
				p.mu.Unlock()
				break
			}
			e := heap.Pop(&p.queue).(*taskEntry)
			p.busy[w] = true
			p.inflight++
			p.mu.Unlock()

			select {
			case p.assign[w] <- e:
			case <-p.ctx.Done():
				e.future <- Result{TaskID: e.task.ID, WorkerID: w, PageURL: e.task.Page.URL, Err: ErrPoolClosed}
				p.taskSettled(w)
				return
			}
		}
	}
}

func (p *Pool) dispatchable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.shutdown && p.queue.Len() > 0 &&
		p.inflight < int(p.cfg.MaxConcurrent) && p.idleWorker() >= 0
}

// idleWorker returns the lowest idle worker index, or -1. Callers hold mu.
func (p *Pool) idleWorker() int {
	for i, b := range p.busy {
		if !b {
			return i
		}
	}
	return -1
}

func (p *Pool) taskSettled(workerID int) {
	p.mu.Lock()
	p.busy[workerID] = false
	p.inflight--
	p.mu.Unlock()
	p.kick()
}

// runWorker processes assignments for one worker slot until the pool stops.
// A panic fails the current task with ErrWorkerCrashed and the slot is
// refilled with a fresh worker at the same index.
func (p *Pool) runWorker(id int) {
	defer p.workerWg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case e := <-p.assign[id]:
			res, crashed := p.runTask(id, e)
			e.future <- res
			p.taskSettled(id)
			if crashed {
				p.logger.Error("worker crashed, replacing", "worker", id, "task", e.task.ID)
				p.workerWg.Add(1)
				go p.runWorker(id)
				return
			}
		}
	}
}

func (p *Pool) runTask(workerID int, e *taskEntry) (res Result, crashed bool) {
	res = Result{TaskID: e.task.ID, WorkerID: workerID, PageURL: e.task.Page.URL}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: %v", ErrWorkerCrashed, r)
			crashed = true
		}
	}()

	if e.task.Kind == KindInit {
		return res, false
	}

	pr, err := p.scanner.Scan(p.ctx, e.task.Page)
	res.Findings = pr.Findings
	res.FormsFound = pr.FormsFound
	res.EndpointsTested = pr.EndpointsTested
	if err != nil {
		res.Err = err
	}
	return res, false
}

// poolProber routes detector probes through the pool's rate limiter and
// in-flight cap.
type poolProber struct {
	p *Pool
}

func (pp *poolProber) Probe(ctx context.Context, method, target string, params, body url.Values) (*scan.ProbeResponse, error) {
	if err := pp.p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer pp.p.sem.Release(1)

	if err := pp.p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pp.p.httpInFlight.Add(1)
	defer pp.p.httpInFlight.Add(-1)

	start := time.Now()
	resp, err := pp.p.fetcher.Fetch(ctx, scraper.Request{
		Method: method,
		URL:    target,
		Params: params,
		Body:   body,
	})
	metrics.RecordProbe(method, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &scan.ProbeResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}, nil
}

// taskQueue is a max-heap on priority, FIFO within equal priority.
type taskQueue []*taskEntry

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].task.Priority != q[j].task.Priority {
		return q[i].task.Priority > q[j].task.Priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	e := x.(*taskEntry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}
