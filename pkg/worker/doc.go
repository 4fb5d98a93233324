// Package worker provides the per-bot conversation loop.
//
// A Worker owns everything one running bot needs: its transport, the blocks
// built from its flow graph, an interpreter and the in-memory sessions of
// every chat it talks to. Run long-polls the transport and handles each
// update in arrival order on a single goroutine, so no chat ever sees two
// updates processed concurrently.
//
// # Dispatch
//
// Each inbound update is routed by the first rule that applies:
//
//   - /start and /help reset the chat's session and run the chain from the
//     start node.
//   - The back command re-executes the previously visited node.
//   - Any other /command runs the menu item registered for it.
//   - An inline button press follows the edge of the pressed button.
//   - Text answering a pending multi-step block goes to that block.
//   - Keyword processors claim matching text.
//   - Keyboard choices follow the edge of the chosen button, current node
//     first.
//   - An nlp_response node answers whatever text is left.
//   - Otherwise the user is told to send /start.
//
// # Failures
//
// Transport conflicts, such as another process polling the same token, are
// retried after a fixed backoff a bounded number of times before Run gives
// up with an error wrapping api.ErrTransportConflict. Credential errors end
// the run immediately. Other poll errors are logged and retried forever.
//
// Workers are normally started and stopped by a supervisor.Supervisor, which
// guarantees at most one live Worker per bot.
package worker
