// Package sandbox runs plugins: WebAssembly modules that read and write
// game memory and print an overlay once per frame.
//
// A plugin imports the host functions listed by HostFunctions from the
// "env" module and may export a run_frame function taking and returning
// nothing. run_frame is called once per frame of the top screen.
package sandbox

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/pnp3ds/pnp/pkg/display"
	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/logflags"
)

// RunFrameExport is the name of the per frame callback.
const RunFrameExport = "run_frame"

var (
	// ErrMalformedModule is returned by Load for bytes that are not a
	// valid module.
	ErrMalformedModule = errors.New("malformed plugin module")
	// ErrInstantiate is returned by Load when a module can not be linked
	// against the host functions or its start function fails.
	ErrInstantiate = errors.New("could not instantiate plugin")
	// ErrTrap is returned by Tick when run_frame faults.
	ErrTrap = errors.New("plugin trapped")
)

// Config configures an Engine.
type Config struct {
	// TickTimeout bounds a single run_frame call. Zero means no limit.
	TickTimeout time.Duration
	// CacheSize is the number of compiled modules kept for reuse.
	CacheSize int
}

// Engine compiles and instantiates plugins. All plugins share one runtime
// and the host module.
type Engine struct {
	rt    wazero.Runtime
	cache *lru.Cache
	hid   horizon.HID
	cfg   Config
	seq   atomic.Uint64
}

// NewEngine creates a runtime and binds the host functions. hid is the
// controller plugins see.
func NewEngine(ctx context.Context, hid horizon.HID, cfg Config) (*Engine, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1
	}
	rtcfg := wazero.NewRuntimeConfigInterpreter().WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, rtcfg)

	b := rt.NewHostModuleBuilder(HostModule)
	for _, f := range hostFunctions {
		b = b.NewFunctionBuilder().WithFunc(f.fn).Export(f.name)
	}
	if _, err := b.Instantiate(ctx); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("could not instantiate host module: %w", err)
	}

	cache, err := lru.NewWithEvict(cfg.CacheSize, func(key, value interface{}) {
		value.(wazero.CompiledModule).Close(context.Background())
	})
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return &Engine{rt: rt, cache: cache, hid: hid, cfg: cfg}, nil
}

// Close releases the runtime and every plugin instantiated by it.
func (e *Engine) Close(ctx context.Context) error {
	e.cache.Purge()
	return e.rt.Close(ctx)
}

// Cached returns the number of compiled modules in the cache.
func (e *Engine) Cached() int {
	return e.cache.Len()
}

func (e *Engine) compile(ctx context.Context, code []byte) (wazero.CompiledModule, error) {
	key := sha256.Sum256(code)
	if v, ok := e.cache.Get(key); ok {
		logflags.SandboxLogger().Debugf("using cached module %x", key[:8])
		return v.(wazero.CompiledModule), nil
	}
	compiled, err := e.rt.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedModule, err)
	}
	e.cache.Add(key, compiled)
	return compiled, nil
}

// Load compiles and instantiates a plugin for title. game may be nil, in
// which case memory host calls do nothing.
func (e *Engine) Load(ctx context.Context, title horizon.TitleID, game GameMemory, code []byte) (*Sandbox, error) {
	compiled, err := e.compile(ctx, code)
	if err != nil {
		return nil, err
	}
	st := newState(title, game, e.hid)
	name := fmt.Sprintf("plugin-%d", e.seq.Add(1))
	mod, err := e.rt.InstantiateModule(withState(ctx, st), compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInstantiate, err)
	}
	s := &Sandbox{
		name:    name,
		mod:     mod,
		state:   st,
		timeout: e.cfg.TickTimeout,
	}
	if fn := mod.ExportedFunction(RunFrameExport); fn != nil {
		def := fn.Definition()
		if len(def.ParamTypes()) == 0 && len(def.ResultTypes()) == 0 {
			s.runFrame = fn
		} else {
			logflags.SandboxLogger().Warnf("%s: ignoring %s with signature %v -> %v", name, RunFrameExport, def.ParamTypes(), def.ResultTypes())
		}
	}
	logflags.SandboxLogger().Debugf("loaded %s for title %v, run_frame exported: %v", name, title, s.runFrame != nil)
	return s, nil
}

// Sandbox is one instantiated plugin.
type Sandbox struct {
	name     string
	mod      api.Module
	runFrame api.Function
	state    *State
	timeout  time.Duration
	last     display.TextBlock
}

// Name returns the unique name of the instance.
func (s *Sandbox) Name() string { return s.name }

// HasRunFrame reports whether the plugin exports a usable run_frame.
func (s *Sandbox) HasRunFrame() bool { return s.runFrame != nil }

// State returns the host side state of the plugin.
func (s *Sandbox) State() *State { return s.state }

// Tick runs one frame of the plugin: the output buffer is cleared,
// run_frame is called and the lines it printed are drawn on screen. A nil
// screen skips drawing. Without run_frame Tick only clears the buffer.
// Errors wrapping ErrTrap are faults of the instance; a drawing error
// leaves it usable.
func (s *Sandbox) Tick(ctx context.Context, screen *display.Screen) error {
	s.state.lines = s.state.lines[:0]
	if s.runFrame == nil {
		return nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.runFrame.Call(withState(ctx, s.state)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTrap, s.name, err)
	}
	s.last = s.state.printer.Block(s.Output())
	if screen == nil {
		return nil
	}
	if err := s.last.Draw(screen); err != nil {
		return fmt.Errorf("%s: draw: %w", s.name, err)
	}
	return nil
}

// Output returns a copy of the lines printed during the last tick.
func (s *Sandbox) Output() []string {
	return append([]string(nil), s.state.lines...)
}

// LastBlock returns the text laid out by the last tick that did not trap.
func (s *Sandbox) LastBlock() display.TextBlock {
	return s.last
}

// Close releases the plugin instance.
func (s *Sandbox) Close(ctx context.Context) error {
	return s.mod.Close(ctx)
}
