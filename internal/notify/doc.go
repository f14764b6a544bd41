// Package notify delivers speech events to an external webhook endpoint.
// Events are posted as JSON with bearer token authentication, retried with
// exponential backoff, and rate limited by a concurrency semaphore.
package notify
