// Package executor runs accepted transforms off the caller's goroutine.
//
// Each job is wrapped as RunAs(user, RetryingTransaction(body)). The body
// re-reads the source, runs the engine into a temporary writer and hands the
// result to the Consumer together with the staleness token captured when the
// transform was requested. Failures go to Consumer.Failure and are returned
// to the transaction wrapper, which decides whether to retry.
package executor
