package queue

import (
	"runtime"
	"time"
)

// spinUntil busy-waits on condition for at most budget, yielding the
// processor between probes. Returns as soon as the condition is met or
// errors; otherwise returns false once the budget is spent and the caller
// falls back to sleeping.
func spinUntil(budget time.Duration, condition func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(budget)
	for {
		ok, err := condition()
		if ok || err != nil {
			return ok, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		runtime.Gosched()
	}
}
