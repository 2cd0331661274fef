// Package postgres provides PostgreSQL implementations of the store
// interfaces. All task mutation goes through version-gated conditional
// updates; the database is the only shared mutable resource between worker
// processes, so these queries are the system's sole synchronization
// primitive.
package postgres
