// Package ports defines the interfaces (ports) that external adapters must implement.
// Storage, transactions, event publishing and task dispatch to interview/exam/to-do
// subsystems are all reached through these interfaces so the services can be tested
// against the in-memory adapter.
package ports
