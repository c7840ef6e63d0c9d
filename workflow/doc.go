// Copyright (c) Mintflow Authors.
// Licensed under the MIT License.

/*
Package workflow defines the workflow graph model and its builder.

# Overview

A workflow is a directed acyclic graph of typed nodes joined by
optionally guarded edges. The package owns the definition side only:
assembling, validating, serializing and editing graphs. Executing them
is the engine package's job.

# Core types

  - WorkflowDefinition — the immutable product of a Build call
  - WorkflowNode / WorkflowEdge — graph elements; edges may carry a
    guard expression evaluated at traversal time
  - NodeConfig — per-kind configuration payload (TriggerConfig,
    TaskConfig, ValidationConfig, ...), validated before a definition
    is returned
  - Builder — fluent assembly: AddTrigger/AddTask/... return node ids,
    AddConditionBranches wires guarded true/false edges
  - Duration — JSON/YAML duration accepting "90s" strings and bare
    millisecond counts

# Capabilities

  - Structural validation: trigger presence, unique ids, existing edge
    endpoints, parseable guards, per-kind config checks, cycle and
    reachability detection; every violation reported at once
  - Versioned editing: Edit seeds a builder from an existing definition
    with the version bumped, leaving the original untouched
  - Serialization: JSON and YAML round trips with kind-dispatched
    config decoding, plus file load/save helpers
  - Field rules: declarative required/non_empty/equals/min_count checks
    over dotted paths, shared with the validation executor
  - Expressions: the expr subpackage parses and evaluates the guard and
    condition language
*/
package workflow
