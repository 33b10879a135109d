// Package command provides the stock commands of cmdkit.
//
// Leaves:
//
//   - Delegate runs a function
//   - Pause waits for a duration
//
// Composites own their children:
//
//   - Sequential runs children one after another, feeding each result to
//     the next child
//   - Parallel runs children concurrently and completes once all of them
//     are terminal
//
// Decorators wrap a single command:
//
//   - TimeLimited, Retryable, Finally and Variable change how the inner
//     command is run
//   - Periodic, Recurring and Scheduled decide when it runs
//   - AbortEvented and AbortSignaled link its abort to an external signal
//
// Every command here embeds core.Base, so it can itself be placed inside
// any composite or decorator.
package command
