// Package core provides the execution model of cmdkit: commands, their
// lifecycle state machine and the ownership tree that composes them.
//
//   - Command is a unit of abortable work that runs synchronously
//     (ExecuteSync) or asynchronously (ExecuteAsync with a Listener) and
//     reports exactly one terminal outcome per execution.
//   - Base implements the lifecycle for every concrete command. Embed it and
//     implement SyncRunner; optionally AsyncRunner, AbortHandler, Resetter
//     and Disposer.
//   - Composites own their children through TakeOwnership. A command has at
//     most one owner; aborting or disposing an owner reaches its children.
//   - Monitors installed in a context.Context (WithMonitors) observe every
//     execution started with it, at any depth of the tree.
//
// Outcomes are reported as errors: nil is success, IsAborted identifies an
// abort and any other error is a failure. Usage errors (ErrInvalidArgument,
// ErrInvalidState, ErrDisposed, ErrOwnership) are returned before anything
// runs and leave the command untouched.
package core
