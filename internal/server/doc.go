// Package server hosts the Fiber HTTP service and its request middleware chain.
// The middleware assigns request IDs, maps bearer credentials to callers and
// records per-route metrics; routes are attached by the routes package so the
// app itself stays free of object-store dependencies.
package server
