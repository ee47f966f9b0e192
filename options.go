// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import "log/slog"

// Option configures a Session.
type Option func(*options)

type options struct {
	bootstrap     any
	bootstrapFunc func() (any, error)
	logger        *slog.Logger
	metrics       *Metrics
	name          string
}

// WithBootstrap sets the value answered to every BOOTSTRAP.
func WithBootstrap(v any) Option {
	return func(o *options) {
		o.bootstrap = v
		o.bootstrapFunc = nil
	}
}

// WithBootstrapFunc sets a factory called for each BOOTSTRAP.
// A factory error is answered as an exception.
func WithBootstrapFunc(f func() (any, error)) Option {
	return func(o *options) {
		o.bootstrapFunc = f
		o.bootstrap = nil
	}
}

// WithLogger sets the diagnostics logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics attaches session metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithName labels the session in logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}
