// Package httpserver provides a REST gateway for the dispatch service: JSON
// publish, stats and journal endpoints, SSE subscriptions, health and
// Prometheus metrics. Routes live in the controllers subpackage.
package httpserver
