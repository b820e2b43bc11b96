//go:build !v8

package quickjs

import (
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
)

// maxPendingJobs bounds one drain so a job that keeps re-queueing itself
// cannot spin forever once the interrupt flag has been consumed.
const maxPendingJobs = 1 << 20

// executePendingJobs runs queued jobs (Promise reactions, queueMicrotask
// callbacks) until the queue is empty. The modernc.org/quickjs binding
// never calls JS_ExecutePendingJob itself. A job that throws leaves its
// exception pending on the context; it is cleared so the next evaluation
// starts clean.
//
// Returns the number of jobs executed.
func executePendingJobs(tls *libc.TLS, ctx, rt uintptr) int {
	if tls == nil || rt == 0 {
		return 0
	}

	count := 0
	for count < maxPendingJobs {
		ret := lib.XJS_ExecutePendingJob(tls, rt, 0)
		if ret == 0 {
			break
		}
		if ret < 0 {
			lib.XFreeValue(tls, ctx, lib.XJS_GetException(tls, ctx))
		}
		count++
	}
	return count
}
