package log

import (
	"fmt"
	"runtime/debug"
)

// SafeGo runs fn in a new goroutine with panic recovery.
// A recovered panic is logged with the goroutine name and stack; it never
// propagates. Use for long-lived background goroutines whose crash would
// otherwise take down the daemon.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Error(CatSaga, "goroutine panic recovered",
					"goroutine", name,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
