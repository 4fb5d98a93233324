// Package api contains the core building blocks used by the botflow
// conversation engine. It defines the flow graph data model, the contract
// every block kind implements, per-chat sessions, the transport abstraction,
// and the hooks used to observe running bots.
//
// Most users interact with the higher-level botflow package, which re-exports
// selected types and constructors from this package. The api package is
// intended for custom block kinds, custom transports, or contributors
// extending the engine itself.
//
// # Flow Graphs
//
// A FlowGraph is the stored flowchart of one bot: nodes with a kind and
// kind-specific data, and directed edges. An edge may carry a handle
// ("yes"/"no", a button index) that discriminates branches leaving the same
// node. FlowGraph.Next resolves a successor by scanning edges in declaration
// order; the first match wins, which makes branch tie-breaking deterministic.
//
// A graph is loaded once when a worker starts and is read-only for the
// lifetime of that worker. Changing a bot's flow means restarting it.
//
// # Blocks
//
// A Block is the runtime handler bound to one node. Blocks are built once per
// node by a Registry and return a Directive:
//
//   - Goto jumps to an explicit node.
//   - FollowEdge and FollowHandle resolve the successor through edges.
//   - Wait ends the chain until the next inbound event.
//
// Optional interfaces (Continuer, Matcher, Chooser, CallbackResolver) let a
// block take part in inbound dispatch: multi-step dialogs, keyword matching,
// and keyboard answers.
//
// # Sessions
//
// A Session is the mutable state of one (bot, chat) pair: a bounded history
// of visited nodes with "back" navigation, an optional pending interaction
// owned by a multi-step block, and free-form variables. Sessions live in
// memory for the lifetime of a worker.
//
// # Errors
//
// ConfigurationError and CredentialError are fatal for a bot and surface
// through the supervisor. TransportConflict is retried inside a worker.
// BlockExecutionError is recovered by the interpreter, which apologises to
// the user and continues.
//
// # Observability
//
// The Observer interface is used by workers and the interpreter to report
// lifecycle events and metrics. NoopObserver, CompositeObserver,
// LoggingObserver and BasicMetrics are ready-made implementations.
package api
