// Copyright (c) Mintflow Authors.
// Licensed under the MIT License.

// Package integrations provides the production collaborators behind
// integration, http_request and email nodes.
//
// # Outbound HTTP
//
// Caller implements the HTTP collaborator contract over a hardened
// client. Every call passes a shared token-bucket rate limiter and the
// target host's circuit breaker before it goes out. Consecutive 5xx
// responses and transport errors open the breaker for that host; after
// the recovery timeout a bounded number of probes decide whether it
// closes again. Authentication is declarative per request: bearer
// tokens, basic credentials, or short-lived HS256 tokens minted from a
// shared secret.
//
// # Notifications
//
// WebhookNotifier delivers notifications by posting a JSON document to
// the webhook URL registered for the notification's channel. The
// payload includes a Slack-compatible "text" field, so a channel can
// point directly at an incoming-webhook endpoint.
package integrations
