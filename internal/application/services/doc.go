// Package services holds the application layer: workflow authoring, viewer
// grants, candidate runs, node executions and the orchestration that moves a
// candidate from one node to the next. Every mutating operation runs inside
// one storage transaction and publishes its events after commit.
package services
