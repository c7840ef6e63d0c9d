// Copyright (c) Mintflow Authors.
// Licensed under the MIT License.

// Package metrics exposes engine observations as prometheus metrics.
// This package is internal and should not be imported by external
// projects.
package metrics
