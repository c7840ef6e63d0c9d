// Copyright (c) Mintflow Authors.
// Licensed under the MIT License.

// Package executors provides the built-in node executors.
//
// # Overview
//
// One executor serves each node kind: trigger, task, validation,
// integration, ai, condition, delay, http_request, email, database,
// loop and transform. RegisterBuiltins wires the full set into an
// engine registry in one call.
//
// # Collaborators
//
// Executors stay thin: domain work happens behind small collaborator
// interfaces (TaskService, HTTPCaller, Notifier, ModelClient,
// RuleEvaluator, Database, FuncRegistry) bundled in Deps. Production
// wiring lives in the integrations and persistence packages; tests
// substitute the mocks from testutil.
//
// # Error contract
//
// Executors report failures through the shared error taxonomy: config
// problems as CONFIG_VALIDATION, collaborator faults as EXECUTION or
// STORAGE with a retryable mark, expression faults as EXPRESSION, and
// exhausted waits as TIMEOUT. A validation node that finds data invalid
// is not an error; it completes with valid=false.
package executors
