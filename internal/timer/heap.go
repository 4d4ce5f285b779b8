package timer

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrManagerStopped is returned when scheduling on a stopped scheduler
var ErrManagerStopped = errors.New("scheduler is stopped")

// Task is a callback due at a point in time
type Task struct {
	ID    string
	At    time.Time
	Run   func()
	index int // position in the heap
}

// taskHeap is a min-heap of tasks ordered by At
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].At.Before(h[j].At)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[:n-1]
	return task
}

// Scheduler runs callbacks at their due time on a fixed pool of workers.
type Scheduler struct {
	mu        sync.Mutex
	heap      taskHeap
	tasks     map[string]*Task
	recurring map[string]bool
	wakeup    chan struct{}
	due       chan *Task
	workers   int
	fired     int
	stopped   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler creates a scheduler with the given number of workers
func NewScheduler(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	s := &Scheduler{
		heap:      make(taskHeap, 0),
		tasks:     make(map[string]*Task),
		recurring: make(map[string]bool),
		wakeup:    make(chan struct{}, 1),
		due:       make(chan *Task),
		workers:   workers,
		stopCh:    make(chan struct{}),
	}
	heap.Init(&s.heap)
	return s
}

// Start launches the dispatch loop and the workers
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go s.run()
}

// Stop drops pending tasks and waits for running callbacks to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Schedule runs fn at at. A task with the same id is replaced.
func (s *Scheduler) Schedule(id string, at time.Time, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(id, at, fn)
}

func (s *Scheduler) scheduleLocked(id string, at time.Time, fn func()) error {
	if s.stopped {
		return ErrManagerStopped
	}

	if existing, ok := s.tasks[id]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.tasks, id)
	}

	task := &Task{ID: id, At: at, Run: fn}
	heap.Push(&s.heap, task)
	s.tasks[id] = task

	if s.heap[0] == task {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// Every runs fn now and then again interval after each run completes, so
// runs of the same id never overlap.
func (s *Scheduler) Every(id string, interval time.Duration, fn func()) error {
	var tick func()
	tick = func() {
		fn()

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.recurring[id] && !s.stopped {
			_ = s.scheduleLocked(id, time.Now().Add(interval), tick)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.scheduleLocked(id, time.Now(), tick); err != nil {
		return err
	}
	s.recurring[id] = true
	return nil
}

// Cancel removes a scheduled task and stops it from recurring
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, wasRecurring := s.recurring[id]
	delete(s.recurring, id)

	task, ok := s.tasks[id]
	if !ok {
		return wasRecurring
	}

	heap.Remove(&s.heap, task.index)
	delete(s.tasks, id)
	return true
}

// run pops due tasks and hands them to the workers
func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}

		wait := 24 * time.Hour
		if s.heap.Len() > 0 {
			wait = time.Until(s.heap[0].At)
			if wait <= 0 {
				task := heap.Pop(&s.heap).(*Task)
				delete(s.tasks, task.ID)
				s.fired++
				s.mu.Unlock()

				select {
				case s.due <- task:
				case <-s.stopCh:
					return
				}
				continue
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.due:
			task.Run()
		case <-s.stopCh:
			return
		}
	}
}

// Stats returns statistics about the scheduler
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Scheduled: len(s.tasks),
		Recurring: len(s.recurring),
		Fired:     s.fired,
		Workers:   s.workers,
	}
}

// Stats contains statistics about the scheduler
type Stats struct {
	Scheduled int
	Recurring int
	Fired     int
	Workers   int
}
