// Copyright (c) Mintflow Authors.
// Licensed under the MIT License.

// Package engine executes workflow definitions.
//
// # Overview
//
// The engine walks a validated definition as a dependency graph. It
// starts every trigger node, and as nodes finish it resolves their
// outgoing edges to compute the next ready set. A node with several
// incoming edges waits for all of them; it runs when at least one
// fired, and is skipped otherwise, with skips cascading so unchosen
// branches drain without executing.
//
// # Execution model
//
// Node work happens on worker goroutines bounded by a semaphore, while
// a single scheduling goroutine owns all graph bookkeeping. Each node
// runs under the definition's retry policy and shares the execution's
// deadline and cancellation signal. Failures either end the run (stop
// strategy, timeouts, cancellation) or isolate the failed branch and
// let independent work continue (continue strategy).
//
// # Extension points
//
// Node behaviour lives behind the NodeExecutor interface, resolved per
// node kind through a Registry. Recorder persists finished executions,
// Alerter reports failed ones, and Metrics observes scheduling, all
// optional.
package engine
