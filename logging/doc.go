// Package logging provides a minimal logging interface and adapters for cmdkit.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn,
// Error) that commands, monitors and the dispatcher use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - CmdKitLogger with component / context cloning and command helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	ctx := core.WithLogger(context.Background(), logger)
//	_, err := cmd.ExecuteSync(ctx, nil)
//
// The interface is kept minimal to avoid vendor lock-in while supporting
// structured logging where available.
package logging
