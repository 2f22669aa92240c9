// Package live maintains the single resilient server-push channel of the
// console and fans connection status out to UI consumers.
//
// A Channel wraps one push subscription to a named topic and owns the
// bounded exponential-backoff reconnection policy. The Supervisor owns the
// one Channel the application is allowed to have, mediates topic switches,
// and broadcasts StatusEvents to registered listeners.
//
// Failures never cross the public operation boundary: Open, Close and the
// status queries do not return errors or panic. All failure information
// flows through the configured callbacks so the channel keeps serving the
// UI regardless of network conditions.
package live
