// Package service contains the application-specific use cases. It
// orchestrates the task queue, the stores and the scheduler to fulfill
// application features, and defines the error types the API layer maps to
// HTTP status codes.
//
// Services accept interfaces for their dependencies and return concrete
// implementations, keeping the delivery layer (internal/api) decoupled from
// persistence (internal/platform/postgres) and the pipeline.
package service
