// Copyright (c) Mintflow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type contracts of the mintflow engine.

# Overview

types is the lowest-level common package. It depends on no internal
package and supplies the unified error taxonomy consumed by workflow,
engine, executors and persistence, avoiding circular dependencies.

# Core types

  - Error / ErrorCode — structured error body with node id, Retryable
    flag and wrapped cause

# Capabilities

  - Error helpers: IsRetryable / GetErrorCode / IsErrorCode / IsFatal
  - errors.Is / errors.As compatible unwrapping through wrap chains
*/
package types
