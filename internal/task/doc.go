// Package task implements the crash-recoverable generation task queue.
//
// A task is one attempt to generate a daily episode for a profile. Tasks are
// durable rows guarded by optimistic concurrency control: every state-changing
// write is conditioned on the version the writer last read, and a stale write
// is rejected. Exclusive execution is granted through a time-bounded lease
// (locked_until); lease expiry is the sole crash-detection signal, so a
// crashed worker's task becomes claimable again without any coordination
// beyond the store's conditional writes.
//
// The Queue hands out at most one active lease system-wide. The Runner polls
// the Queue, executes claimed tasks through a pluggable Executor, and renews
// the lease while a task runs.
package task
