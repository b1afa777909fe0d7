// Package parallel implements a bounded-concurrency execution primitive.
//
// A fixed array of slots caps how many tasks run at once; pending work
// waits in a FIFO queue. Slot selection follows a configurable
// load-balancing policy and every task races against a per-task timeout.
// The executor is independent of dependency semantics: callers must have
// resolved any required ordering before submitting a batch.
package parallel
