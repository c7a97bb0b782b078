// Package task implements the repository analysis task lifecycle: submission,
// queuing, claim-then-own processing by background workers, cooperative
// cancellation, bounded retries and recovery of tasks orphaned by a crashed
// worker. Durable state lives behind the Store interface and work hand-off
// behind the Queue interface, so any number of worker processes can share one
// database and one queue.
package task
