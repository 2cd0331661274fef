// Package pipeline implements the checkpointed episode generation pipeline.
//
// The Executor walks a fixed stage sequence (outline, passage, annotate,
// quiz) for one claimed task. After each completed stage it persists a
// checkpoint carrying every output accumulated so far, so a retried task
// resumes after the last completed stage instead of repeating remote calls.
// Stage failures never escape as errors to the worker loop: they become a
// failed task transition with the failing stage recorded in the task's error
// context.
package pipeline
