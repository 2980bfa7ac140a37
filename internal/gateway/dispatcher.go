package gateway

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/mbeoliero/kit/log"
)

// pushTask is one encoded frame and the connections resolved for it at enqueue time
type pushTask struct {
	key     string
	event   string
	targets []*Client
	payload []byte
}

// Dispatcher writes push frames from a fixed set of workers.
// Tasks with the same key land on the same worker and keep their order.
type Dispatcher struct {
	queues []chan *pushTask
	wg     sync.WaitGroup
	once   sync.Once
}

// NewDispatcher creates a dispatcher with workerNum queues of size queueSize each
func NewDispatcher(workerNum, queueSize int) *Dispatcher {
	if workerNum <= 0 {
		workerNum = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	perWorker := queueSize / workerNum
	if perWorker == 0 {
		perWorker = 1
	}

	d := &Dispatcher{queues: make([]chan *pushTask, workerNum)}
	for i := range d.queues {
		d.queues[i] = make(chan *pushTask, perWorker)
	}
	return d
}

// Run starts the workers; they stop when ctx is done
func (d *Dispatcher) Run(ctx context.Context) {
	d.once.Do(func() {
		for i, q := range d.queues {
			d.wg.Add(1)
			go d.worker(ctx, i, q)
		}
	})
}

// Wait blocks until every worker returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch enqueues the task without blocking; a full queue drops it
func (d *Dispatcher) Dispatch(task *pushTask) bool {
	if len(task.targets) == 0 {
		return true
	}

	q := d.queues[d.shard(task.key)]
	select {
	case q <- task:
		return true
	default:
		log.Warn("push channel full, dropping task: event=%s, key=%s, targets=%d", task.event, task.key, len(task.targets))
		return false
	}
}

func (d *Dispatcher) shard(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(d.queues)))
}

func (d *Dispatcher) worker(ctx context.Context, id int, q chan *pushTask) {
	defer d.wg.Done()
	log.Debug("push worker started: id=%d", id)

	for {
		select {
		case <-ctx.Done():
			log.Debug("push worker stopped: id=%d", id)
			return
		case task := <-q:
			d.deliver(task)
		}
	}
}

func (d *Dispatcher) deliver(task *pushTask) {
	for _, c := range task.targets {
		if err := c.Push(task.payload); err != nil {
			log.Debug("push failed: event=%s, user_id=%s, conn_id=%s, error=%v", task.event, c.UserId, c.ConnId, err)
		}
	}
}
