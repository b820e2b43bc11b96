// Package wasmhost runs the compiled WebAssembly build of the shell under
// wazero and exposes it through the same surface as an in-process session.
//
// The module is the Emscripten build of the C wrapper. It exports
// mquickjs_init, mquickjs_run, mquickjs_reset, mquickjs_cleanup,
// mquickjs_clear_output, mquickjs_get_output, mquickjs_version and
// mquickjs_memory_size, plus malloc and free for passing source text in.
// Strings cross the boundary as NUL-terminated bytes in linear memory.
package wasmhost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cryguy/mqjs/internal/core"
	"github.com/cryguy/mqjs/internal/render"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// ErrMissingExport is returned by New when the module lacks a function
// the host calls.
var ErrMissingExport = errors.New("wasmhost: missing export")

const (
	fnInit        = "mquickjs_init"
	fnRun         = "mquickjs_run"
	fnReset       = "mquickjs_reset"
	fnCleanup     = "mquickjs_cleanup"
	fnClearOutput = "mquickjs_clear_output"
	fnGetOutput   = "mquickjs_get_output"
	fnVersion     = "mquickjs_version"
	fnMemorySize  = "mquickjs_memory_size"
	fnMalloc      = "malloc"
	fnFree        = "free"
)

var requiredExports = []string{
	fnInit, fnRun, fnReset, fnCleanup, fnClearOutput,
	fnGetOutput, fnVersion, fnMemorySize, fnMalloc, fnFree,
}

type hostCfg struct {
	log         *zap.Logger
	timeout     time.Duration
	memoryPages uint32
}

// Option configures a Host.
type Option func(*hostCfg)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *hostCfg) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTimeout bounds each call into the module. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(c *hostCfg) { c.timeout = d }
}

const (
	pageSize = 65536
	maxPages = 65536
)

// WithMaxMemory caps the module's linear memory, in bytes. The value is
// rounded up to whole 64 KiB pages and clamped to one page at the least.
// Zero leaves the 4 GiB default.
func WithMaxMemory(maxBytes uint64) Option {
	return func(c *hostCfg) {
		if maxBytes == 0 {
			return
		}
		pages := min(maxBytes/pageSize, maxPages)
		if pages < maxPages && maxBytes%pageSize != 0 {
			pages++
		}
		c.memoryPages = min(c.memoryPages, uint32(pages))
	}
}

// Host drives one instance of the compiled shell. Its methods serialize
// on an internal mutex.
type Host struct {
	cfg hostCfg

	mu       sync.Mutex
	rt       wazero.Runtime
	compiled wazero.CompiledModule
	mod      api.Module // nil after an interrupted call closed it
	version  string
	memSize  int
}

// New compiles and instantiates wasm. Instantiation runs the module's
// _initialize export, if any; the shell itself initializes lazily.
func New(ctx context.Context, wasm []byte, opts ...Option) (*Host, error) {
	cfg := hostCfg{log: zap.NewNop(), memoryPages: maxPages}
	for _, opt := range opts {
		opt(&cfg)
	}

	rtCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.memoryPages).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	h := &Host{cfg: cfg, rt: rt}
	if err := h.setup(ctx, wasm); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return h, nil
}

func (h *Host) setup(ctx context.Context, wasm []byte) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, h.rt); err != nil {
		return fmt.Errorf("instantiating WASI: %w", err)
	}

	// Emscripten builds with ALLOW_MEMORY_GROWTH import this notification.
	_, err := h.rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(context.Context, int32) {}).
		Export("emscripten_notify_memory_growth").
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiating env module: %w", err)
	}

	compiled, err := h.rt.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("compiling module: %w", err)
	}
	exported := compiled.ExportedFunctions()
	var missing []string
	for _, name := range requiredExports {
		if _, ok := exported[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %v", ErrMissingExport, missing)
	}
	h.compiled = compiled

	if err := h.instantiate(ctx); err != nil {
		return err
	}

	if h.version, err = h.callString(ctx, fnVersion); err != nil {
		return fmt.Errorf("reading version: %w", err)
	}
	size, err := h.call(ctx, fnMemorySize)
	if err != nil {
		return fmt.Errorf("reading memory size: %w", err)
	}
	h.memSize = int(api.DecodeI32(size[0]))
	return nil
}

func (h *Host) instantiate(ctx context.Context) error {
	mod, err := h.rt.InstantiateModule(ctx, h.compiled,
		wazero.NewModuleConfig().
			WithName("").
			WithStartFunctions("_initialize"))
	if err != nil {
		return fmt.Errorf("instantiating module: %w", err)
	}
	h.mod = mod
	return nil
}

// revive replaces a module instance that an interrupted call closed.
func (h *Host) revive(ctx context.Context) error {
	if h.mod != nil && !h.mod.IsClosed() {
		return nil
	}
	h.cfg.log.Warn("re-instantiating wasm module after interrupted call")
	return h.instantiate(ctx)
}

func (h *Host) callContext() (context.Context, context.CancelFunc) {
	if h.cfg.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeoutCause(context.Background(), h.cfg.timeout, &core.TimeoutError{Limit: h.cfg.timeout})
}

func (h *Host) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if err := h.revive(ctx); err != nil {
		return nil, err
	}
	return h.mod.ExportedFunction(name).Call(ctx, params...)
}

func (h *Host) callString(ctx context.Context, name string, params ...uint64) (string, error) {
	res, err := h.call(ctx, name, params...)
	if err != nil {
		return "", err
	}
	data, err := h.readStrView(api.DecodeU32(res[0]))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Initialize builds the engine inside the module. The wrapper makes this
// idempotent.
func (h *Host) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, cancel := h.callContext()
	defer cancel()
	return h.callStatus(ctx, fnInit)
}

func (h *Host) callStatus(ctx context.Context, name string) error {
	res, err := h.call(ctx, name)
	if err != nil {
		return fmt.Errorf("calling %s: %w", name, err)
	}
	if rc := api.DecodeI32(res[0]); rc != 0 {
		return fmt.Errorf("%s returned %d", name, rc)
	}
	return nil
}

// Run evaluates source in the module and returns its rendered result.
func (h *Host) Run(source string) string {
	ctx, cancel := h.callContext()
	defer cancel()
	return h.Exec(ctx, source)
}

// Exec is Run under ctx. Cancelling ctx aborts the module call; the
// instance is then discarded and the next call starts from a fresh one.
func (h *Host) Exec(ctx context.Context, source string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	text, err := h.run(ctx, source)
	if err == nil {
		return text
	}
	if ctx.Err() != nil {
		h.cfg.log.Warn("wasm evaluation interrupted", zap.Error(context.Cause(ctx)))
		return render.Text(core.Interrupted(ctx), "")
	}
	h.cfg.log.Error("wasm evaluation failed", zap.Error(err))
	return render.Text(core.Exception(err.Error()), "")
}

func (h *Host) run(ctx context.Context, source string) (string, error) {
	if err := h.revive(ctx); err != nil {
		return "", err
	}
	ptr, err := h.copyString(ctx, source)
	if err != nil {
		return "", err
	}
	defer h.freeString(ctx, ptr)

	return h.callString(ctx, fnRun, api.EncodeU32(ptr))
}

// Reset rebuilds the engine inside the module, dropping all script state.
func (h *Host) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, cancel := h.callContext()
	defer cancel()
	return h.callStatus(ctx, fnReset)
}

// Cleanup frees the engine inside the module.
func (h *Host) Cleanup() {
	h.callVoid(fnCleanup)
}

// ClearOutput empties the module's output buffer.
func (h *Host) ClearOutput() {
	h.callVoid(fnClearOutput)
}

func (h *Host) callVoid(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, cancel := h.callContext()
	defer cancel()
	if _, err := h.call(ctx, name); err != nil {
		h.cfg.log.Warn("wasm call failed", zap.String("export", name), zap.Error(err))
	}
}

// Output returns the module's output buffer.
func (h *Host) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, cancel := h.callContext()
	defer cancel()
	s, err := h.callString(ctx, fnGetOutput)
	if err != nil {
		h.cfg.log.Warn("reading wasm output", zap.Error(err))
		return ""
	}
	return s
}

// Version returns the string the module reports for itself.
func (h *Host) Version() string {
	return h.version
}

// MemoryBudget returns the engine heap size the module was built with.
func (h *Host) MemoryBudget() int {
	return h.memSize
}

// Close releases the runtime and every module in it.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rt.Close(ctx)
}

// readStrView reads a NUL-terminated string from linear memory at ptr.
// The returned slice aliases module memory.
func (h *Host) readStrView(ptr uint32) ([]byte, error) {
	mem := h.mod.Memory()
	if mem == nil {
		return nil, errors.New("module exports no memory")
	}
	size := mem.Size()
	if size == 0 {
		size = math.MaxUint32
	}
	if ptr >= size {
		return nil, fmt.Errorf("string pointer %#x outside memory", ptr)
	}
	data, ok := mem.Read(ptr, size-ptr)
	if !ok {
		return nil, errors.New("out of memory error")
	}
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return nil, errors.New("invalid c str")
	}
	return data[:idx], nil
}

// copyString allocates len(str)+1 bytes in linear memory and writes str
// followed by a terminator. The caller frees the pointer with freeString.
func (h *Host) copyString(ctx context.Context, str string) (uint32, error) {
	results, err := h.mod.ExportedFunction(fnMalloc).Call(ctx, api.EncodeU32(uint32(len(str)+1)))
	if err != nil {
		return 0, err
	}
	ptr := api.DecodeU32(results[0])
	if ptr == 0 {
		return 0, errors.New("out of memory error")
	}
	mem := h.mod.Memory()
	if !mem.WriteString(ptr, str) || !mem.WriteByte(ptr+uint32(len(str)), 0) {
		h.freeString(ctx, ptr)
		return 0, errors.New("out of memory error")
	}
	return ptr, nil
}

func (h *Host) freeString(ctx context.Context, ptr uint32) {
	if ptr == 0 || h.mod == nil || h.mod.IsClosed() {
		return
	}
	if _, err := h.mod.ExportedFunction(fnFree).Call(ctx, api.EncodeU32(ptr)); err != nil {
		h.cfg.log.Debug("freeing wasm string", zap.Error(err))
	}
}
