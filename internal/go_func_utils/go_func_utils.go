package go_func_utils

import (
	"log"
	"runtime/debug"
)

// SafeGo runs fn on a new goroutine. A panic is written to logger with its
// stack before being re-raised, since the terminal UI hides stderr.
func SafeGo(logger *log.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("PANIC: %v\n%s", r, debug.Stack())
				panic(r)
			}
		}()
		fn()
	}()
}

// SafeGoWithDone is SafeGo that also closes done when fn returns.
func SafeGoWithDone(logger *log.Logger, fn func()) <-chan struct{} {
	done := make(chan struct{})
	SafeGo(logger, func() {
		defer close(done)
		fn()
	})
	return done
}
