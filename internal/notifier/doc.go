// Package notifier delivers operator alerts in the background: new and
// returning subscribers, scheduled digests and forwarded error logs.
//
// Enqueueing never blocks. Sends are spaced by a token bucket, retried with
// backoff and dropped with a log line when they keep failing, so a broken
// admin chat never affects the request that triggered the alert.
package notifier
