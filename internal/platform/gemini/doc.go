// Package gemini implements the generation.Generator interface against
// Google's Gemini API. Prompts are built from embedded templates, JSON
// responses are schema-validated before use, and transient API failures are
// retried with exponential backoff and jitter.
package gemini
