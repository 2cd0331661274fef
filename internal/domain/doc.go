// Package domain defines the core business entities and errors:
// generation profiles and the episode artifacts (passages, annotations,
// comprehension questions) produced by the generation pipeline.
package domain
