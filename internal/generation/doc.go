// Package generation defines the boundary between the pipeline and the
// external generative-text service. The Generator interface exposes one
// method per pipeline stage; implementations live under platform (e.g. the
// Gemini adapter) so the pipeline stays independent of any particular
// provider.
package generation
