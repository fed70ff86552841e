package systems

import (
	"context"
	"sync"

	"github.com/spaghettifunk/anima-cgi/engine/core"
	"golang.org/x/sync/errgroup"
)

/**
 * @brief Describes a job to be run on a worker.
 */
type Job struct {
	/** @brief Invoked on a worker when the job starts. Required. */
	Run func(ctx context.Context) (interface{}, error)
	/** @brief Invoked on the main thread from Update when Run succeeds. Optional. */
	OnSuccess func(result interface{})
	/** @brief Invoked on the main thread from Update when Run fails. Optional. */
	OnFailure func(err error)
}

type jobResult struct {
	job    Job
	result interface{}
	err    error
}

// JobSystem runs CPU-side work on a fixed pool of workers. Results are
// handed back to the thread that calls Update, which is the thread that
// records commands, so callbacks may touch renderer resources.
type JobSystem struct {
	numWorkers int
	jobQueue   chan Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu      sync.Mutex
	results []jobResult
}

var ErrNoWorkers = core.Recoverablef("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = core.Recoverablef("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, channelSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	js.start()

	return js, nil
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				result, err := job.Run(js.ctx)
				if err != nil {
					core.LogError("job failed: %v", err)
				}
				if job.OnSuccess == nil && job.OnFailure == nil {
					continue
				}
				js.mu.Lock()
				js.results = append(js.results, jobResult{job: job, result: result, err: err})
				js.mu.Unlock()
			}
		}()
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run, their callbacks
 * are dropped.
 */
func (js *JobSystem) Shutdown() error {
	close(js.jobQueue)
	js.cancel()
	js.wg.Wait()
	return nil
}

/**
 * @brief Runs the callbacks of finished jobs. Should happen once an update cycle.
 * @return the number of callbacks run.
 */
func (js *JobSystem) Update() int {
	js.mu.Lock()
	done := js.results
	js.results = nil
	js.mu.Unlock()

	for _, r := range done {
		if r.err != nil {
			if r.job.OnFailure != nil {
				r.job.OnFailure(r.err)
			}
		} else if r.job.OnSuccess != nil {
			r.job.OnSuccess(r.result)
		}
	}
	return len(done)
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(j Job) {
	js.jobQueue <- j
}

// ParallelFor calls fn for every index in [0, n) using at most one goroutine
// per worker and returns the first error. Remaining iterations see a
// cancelled context once one fails.
func (js *JobSystem) ParallelFor(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(js.numWorkers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// ParallelRange splits [0, n) into one contiguous chunk per worker, for
// loops whose body is too small to pay for a goroutine each.
func (js *JobSystem) ParallelRange(ctx context.Context, n int, fn func(begin, end int)) error {
	if n <= 0 {
		return nil
	}
	chunks := js.numWorkers
	if chunks > n {
		chunks = n
	}
	size := (n + chunks - 1) / chunks
	return js.ParallelFor(ctx, chunks, func(_ context.Context, c int) error {
		begin := c * size
		end := begin + size
		if end > n {
			end = n
		}
		if begin < end {
			fn(begin, end)
		}
		return nil
	})
}
