// Package logging provides a minimal logging interface and adapters for symflow.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that programs, modules and the training loop use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogLogger adapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	gen, err := module.NewGenerator(lm, func(o *module.GeneratorOptions) {
//		o.Logger = logger
//	})
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
