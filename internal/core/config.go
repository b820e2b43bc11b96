package core

// EngineConfig is what an engine backend receives at construction time.
type EngineConfig struct {
	MemoryBudget int  // bytes the engine may allocate, 0 for the backend default
	StdLib       bool // install the extended console and helpers
}
