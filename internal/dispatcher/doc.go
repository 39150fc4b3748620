// Package dispatcher runs commands through the model's handlers and keeps
// every user-visible dispatch atomic.
//
// # Architecture
//
// Handlers are registered in three layers, always called in the same order:
//
//  1. Core: plugins owning the synchronized document data.
//  2. UI: plugins owning local state such as the selection.
//  3. History: the local undo/redo handler.
//
// A state machine guards re-entrancy. Its statuses are Ready, Running,
// RunningCore and Finalizing; Status.Next is the transition function.
//
// # Outermost Dispatch
//
// When a command is dispatched from Ready:
//
//  1. In read-only mode only whitelisted commands pass
//  2. Pre-dispatch hooks may cancel the command
//  3. AllowDispatch is asked of every handler; any reason refuses the command
//     with no side effect
//  4. Inside a recorder frame the command is recorded if it is core, then
//     BeforeHandle and Handle run on every handler, then Finalize
//  5. Commit functions receive the recorded commands and changes
//  6. Exactly one Update is published
//  7. Post-dispatch hooks run and metrics are recorded (if enabled)
//
// A handler panic reverts every write made by the command. With
// RecoverPanics the dispatch then returns ReasonHandlerPanic.
//
// # Nested Dispatch
//
// Handlers may dispatch while Running. Nested core commands are validated
// and recorded; no extra Update is published. Dispatching while Finalizing
// or RunningCore breaks the protocol and panics with a *ContractError.
//
// # Replay
//
// DispatchCore replays a command to the core handlers only. It is how the
// collaborative session applies remote and transformed revisions.
// NotifyRemote then lets the UI handlers observe the replayed commands.
//
// # Thread Safety
//
// Registration, hooks and read-only mode are safe for concurrent use.
// Dispatch itself is single-threaded; the model serializes it.
package dispatcher
