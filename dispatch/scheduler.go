package dispatch

// Scheduler defers a task to a later turn of execution.
// Implementations must never run the task inside the call to Schedule.
type Scheduler interface {
	Schedule(task func())
}

// SchedulerFunc allows using a function as a [Scheduler].
type SchedulerFunc func(task func())

func (f SchedulerFunc) Schedule(task func()) {
	f(task)
}

// Async returns a [Scheduler] that runs every task on its own goroutine.
// Tasks may run concurrently, and there's no ordering between them.
func Async() Scheduler {
	return SchedulerFunc(func(task func()) {
		go task()
	})
}
