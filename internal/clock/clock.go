// Package clock provides the time source for deadline computation so sweeps
// and expiry tests can run against a controlled clock.
package clock

import "time"

// NowFunc supplies the current time; tests override it to freeze or advance
// deadlines deterministically.
var NowFunc = time.Now

// Now returns the current time from NowFunc.
func Now() time.Time { return NowFunc() }
