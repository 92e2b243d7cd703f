// Package reactive provides the small set of push-based primitives the
// notification source registry is built on.
//
//   - Feed: a broadcast of the most recent value. Subscribers receive the
//     current value on subscribe and every later value, conflated so that a
//     slow reader never blocks a publisher and never lags behind indefinitely.
//   - Cell: a single-slot variable with a bounded wait for a value to appear.
//   - Switch: follows whichever inner Feed an outer Feed currently selects,
//     dropping the previous inner Feed as soon as the selection changes.
//
// # Usage
//
//	feed := reactive.NewFeed[[]device.Device]()
//	sub := feed.Subscribe()
//	defer sub.Close()
//
//	for devices := range sub.C() {
//	    render(devices)
//	}
//
// # Thread Safety
//
// All types are safe for concurrent use. Observer callbacks registered with
// Feed.Observe run synchronously on the publishing goroutine and must not
// block or publish back into the same Feed.
package reactive
