/*
Package observability turns engine lifecycle hooks into Prometheus metrics
and a stream of JSON events.

Hooks may be invoked concurrently from fan-out tasks, so every hook built
here is safe for concurrent use. Use Compose to install several at once.
*/
package observability
