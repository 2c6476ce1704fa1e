// Package worker provides a bounded pool for fanning out independent tasks.
package worker

import (
	"context"
	"sync"
)

// Task is a unit of work identified for logging.
type Task[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// Outcome pairs a task's result with its ID.
type Outcome[T any] struct {
	ID    string
	Value T
	Err   error
}

// Run executes tasks on at most workers goroutines and returns outcomes in
// task order. Cancelling the context marks unstarted tasks with the context
// error; tasks already running finish normally.
func Run[T any](ctx context.Context, workers int, tasks []Task[T]) []Outcome[T] {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	outcomes := make([]Outcome[T], len(tasks))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				task := tasks[i]
				if err := ctx.Err(); err != nil {
					outcomes[i] = Outcome[T]{ID: task.ID, Err: err}
					continue
				}
				value, err := task.Run(ctx)
				outcomes[i] = Outcome[T]{ID: task.ID, Value: value, Err: err}
			}
		}()
	}

	for i := range tasks {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return outcomes
}
