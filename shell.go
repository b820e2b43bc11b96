package mqjs

// Shell is the boundary surface of a JavaScript shell: a persistent global
// scope that evaluates one source string at a time and answers with a
// single rendered string. *Session implements it with an in-process
// engine; internal/wasmhost implements it over the compiled WebAssembly
// wrapper.
type Shell interface {
	// Initialize builds the engine. Calling it again is a no-op.
	Initialize() error

	// Run evaluates source and returns the output it printed followed by
	// the rendered result, or an "Error: " line.
	Run(source string) string

	// Reset discards all script state and builds a fresh engine.
	Reset() error

	// Cleanup discards the engine. A later Run initializes a new one.
	Cleanup()

	// ClearOutput empties the output buffer without touching script state.
	ClearOutput()

	// Output returns what scripts have printed since the last clear.
	Output() string

	Version() string

	// MemoryBudget is the engine heap limit in bytes.
	MemoryBudget() int
}

var _ Shell = (*Session)(nil)
