// Package app provides the application service layer.
//
// Orchestrates use cases: casting votes, poll management, fetch-on-connect snapshots,
// expiry broadcasts and cross-instance relay. Sits between HTTP handlers and the
// vote store and broadcast hub. Depends on domain interfaces, not concrete implementations.
package app
