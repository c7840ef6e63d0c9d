// Copyright (c) Mintflow Authors.
// Licensed under the MIT License.

// Package persistence provides execution trace stores.
//
// Every store implements engine.Recorder, so it can be handed directly
// to the engine, which records finished executions asynchronously and
// never blocks scheduling on persistence. Three backends exist:
//
//   - MemoryStore: in-process map, for tests and single-shot CLI runs
//   - RedisStore: JSON values plus sorted-set indexes by state and
//     definition
//   - GormStore: one relational table (postgres, mysql or sqlite)
//
// NewStore builds the backend named by Options.Driver.
package persistence
