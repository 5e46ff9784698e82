package pipeline

import (
	"sync"

	"github.com/rs/zerolog"
)

// Pool is a bounded worker pool for the fire and forget tasks, plate
// decodes and artifact materialization, keeping them off the per-frame
// path
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	close sync.Once
	log   zerolog.Logger
}

// NewPool starts size workers
func NewPool(size int, log zerolog.Logger) *Pool {

	p := &Pool{
		tasks: make(chan func(), size*4),
		log:   log,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("pool task panic")
		}
	}()

	task()
}

// Submit queues a task without ever blocking the caller; submission
// happens on the per-frame path. Reports whether the task was accepted,
// a full backlog rejects it.
func (p *Pool) Submit(task func()) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		p.log.Warn().Msg("task backlog full, task rejected")
		return false
	}
}

// Close stops accepting tasks and waits for in-flight ones to drain
func (p *Pool) Close() {
	p.close.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}
