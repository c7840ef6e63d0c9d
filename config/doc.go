// Copyright (c) Mintflow Authors.
// Licensed under the MIT License.

// Package config loads mintflow configuration from defaults, an
// optional YAML file and MINTFLOW_* environment variables, in that
// precedence order. The sections mirror the process surface: engine
// tuning, execution storage, the outbound HTTP caller, notification
// webhooks, logging and telemetry.
package config
