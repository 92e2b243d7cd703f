package sources

import "errors"

var (
	// ErrNoStores is returned by NewEngine when no store provider is configured.
	ErrNoStores = errors.New("sources: engine requires a store provider")

	// ErrNoProber is returned by NewWatcher when no prober is configured.
	ErrNoProber = errors.New("sources: watcher requires a prober")
)
