package livestorage

import (
	"context"
	"sync"
)

type hostOp struct {
	action   string
	area     Area
	key      string
	value    any
	hasValue bool
}

// writeQueue forwards host writes in call order on a single goroutine. The
// queue is unbounded so a listener writing from inside a dispatch never
// blocks on the host.
type writeQueue struct {
	mu      sync.Mutex
	idle    *sync.Cond
	ops     []hostOp
	pending int
	running bool
	run     func(hostOp)
}

func newWriteQueue(run func(hostOp)) *writeQueue {
	q := &writeQueue{run: run}
	q.idle = sync.NewCond(&q.mu)
	return q
}

func (q *writeQueue) push(op hostOp) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	q.pending++
	if !q.running {
		q.running = true
		go q.drain()
	}
}

func (q *writeQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.ops) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.ops[0] = hostOp{}
		q.ops = q.ops[1:]
		q.mu.Unlock()

		q.run(op)

		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			q.idle.Broadcast()
		}
		q.mu.Unlock()
	}
}

// wait blocks until every pushed op has run.
func (q *writeQueue) wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.idle.Wait()
	}
}

func (s *Storage) forward(op hostOp) {
	s.emitLocalWrite(op)
	s.writes.push(op)
}

func (s *Storage) runHostOp(op hostOp) {
	ctx, cancel := s.hostContext()
	defer cancel()

	var err error
	switch op.action {
	case ActionSet:
		err = s.host.Write(ctx, op.area, op.key, op.value)
	case ActionRemove:
		err = s.host.Remove(ctx, op.area, op.key)
	}
	if err == nil {
		return
	}
	s.reportError(err, ErrorInfo{
		Action:   op.action,
		Area:     op.area,
		Key:      op.key,
		Value:    op.value,
		HasValue: op.hasValue,
		Err:      err,
	})
}

func (s *Storage) hostContext() (context.Context, context.CancelFunc) {
	if s.cfg.hostTimeout > 0 {
		return context.WithTimeout(s.ctx, s.cfg.hostTimeout)
	}
	return context.WithCancel(s.ctx)
}
