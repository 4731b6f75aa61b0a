package engine

import (
	"time"

	"github.com/petrkrulis2022/cubepay/pkg/chains"
	"github.com/petrkrulis2022/cubepay/pkg/executor"
	"github.com/petrkrulis2022/cubepay/pkg/ledger"
	"github.com/petrkrulis2022/cubepay/pkg/logger"
	"github.com/petrkrulis2022/cubepay/pkg/metrics"
	"github.com/petrkrulis2022/cubepay/pkg/networks"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithTimeout bounds the time from payment acceptance to a terminal state.
func WithTimeout(t time.Duration) Option {
	return func(e *Engine) {
		e.timeout = t
	}
}

// WithCatalog replaces the built-in network catalog.
func WithCatalog(catalog []networks.Descriptor) Option {
	return func(e *Engine) {
		e.catalog = catalog
	}
}

// WithRelay sets the cross-network relay capability.
func WithRelay(relay chains.Relay) Option {
	return func(e *Engine) {
		e.relay = relay
	}
}

// WithStore sets the durable store the ledger writes through.
func WithStore(store ledger.Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithAdapter registers a family adapter (chain query + address scheme).
func WithAdapter(adapter chains.FamilyAdapter) Option {
	return func(e *Engine) {
		e.adapters.Register(adapter)
	}
}

// WithStatusCallback observes every payment state transition.
func WithStatusCallback(cb executor.StatusCallback) Option {
	return func(e *Engine) {
		e.onStatus = cb
	}
}
