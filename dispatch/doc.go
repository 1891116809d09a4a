// Package dispatch provides the deferred execution primitive used to run message handlers.
//
// Handlers are never run inside the call that triggered them.
// Instead, every invocation is handed to a [Scheduler] which runs it on a later turn.
// [Async] runs each task on its own goroutine, while [Serial] runs tasks one at a time in FIFO order like an event loop.
package dispatch
