// Package botflow runs chat bots whose behaviour is described by a flow
// graph instead of code.
//
// A flow graph is the document a visual editor produces: nodes (a greeting,
// a keyboard, a condition, a booking form) joined by edges. botflow loads one
// graph per bot, turns every node into an executable block and serves each
// bot from its own goroutine, long-polling the messaging platform for
// updates.
//
// # Core Concepts
//
// The programming model is small:
//
//  1. FlowGraph
//  2. Block
//  3. Worker
//  4. Supervisor
//  5. LocalRunner
//
// # FlowGraph
//
// A FlowGraph holds Nodes and Edges. Every node has an id, a kind ("start",
// "message", "button", "condition", "menu", ...) and kind-specific data. An
// edge may carry a handle: a keyboard node leaves through the handle of the
// chosen button index, a condition through "yes" or "no", a menu through the
// command name. An edge without a handle is the default way out.
//
// Graphs are stored as JSON (or YAML) and persisted in a FlowStore:
//
//   - In-memory (non-durable, best for tests)
//   - A directory of bot_<id>.json files
//   - SQLite
//   - Postgres
//   - Redis
//   - MongoDB
//
// FlowBuilder defines graphs in code:
//
//	botflow.NewFlow().
//	    Start("s").
//	    Message("hello", "Welcome!").
//	    Buttons("menu", "What next?", "Prices", "Contacts").
//	    Chain("s", "hello", "menu").
//	    Choice("menu", 0, "prices")
//
// # Block
//
// A Block executes one node for one chat. It sends messages through the
// Exec it receives and returns a Directive: follow the default edge, follow
// a handle, jump to a node, or Wait for the user's next message. Custom
// kinds are added by registering a factory on a Registry.
//
// # Worker
//
// A Worker owns one bot: its transport, its built blocks and a Session per
// chat (current node, bounded back-history, pending input). It dispatches
// /start, /back, menu commands, keyword matches, keyboard choices and inline
// callbacks, and runs the resulting chain of blocks until one waits.
// Transport conflicts are retried a bounded number of times, rejected
// credentials end the worker, other poll errors are retried with backoff.
//
// # Supervisor
//
// The Supervisor is the control surface. It starts, stops and restarts
// workers by bot id, guarantees at most one live worker per bot, reports
// status and records lifecycle events. A worker that ignores cancellation
// past the stop timeout is given up on; the bot cannot be started again
// until that worker has exited.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory store, an in-memory chat network and a
// Supervisor. It is the quickest way to try a flow or test custom blocks
// without contacting a real messaging platform.
//
// The botflowd command serves bots from a YAML configuration file and
// imports, exports and validates flow files. See the /examples directory
// for library usage.
package botflow
