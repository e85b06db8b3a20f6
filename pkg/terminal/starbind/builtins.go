package starbind

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/pnp3ds/pnp/pkg/horizon"
	"github.com/pnp3ds/pnp/pkg/target"
)

const (
	frameBuiltinName   = "frame"
	pressBuiltinName   = "press"
	holdBuiltinName    = "hold"
	readBuiltinName    = "read"
	writeBuiltinName   = "write"
	titleBuiltinName   = "title"
	overlayBuiltinName = "overlay"
	statusBuiltinName  = "status"
)

// targetBuiltins adds the builtins that drive the console.
func (env *Env) targetBuiltins() {
	env.builtin(frameBuiltinName, "(Count=1, Screen=0)", `presents Count frames on Screen and returns how many completed.

A frame that pauses the game stops the loop; the next frame call completes it once a button has released the game.`, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		count, screen := 1, 0
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "count?", &count, "screen?", &screen); err != nil {
			return nil, err
		}
		if screen < 0 {
			return nil, decorateError(thread, fmt.Errorf("invalid screen %d", screen))
		}
		ctx := threadContext(thread)
		for i := 0; i < count; i++ {
			if err := isCancelled(thread); err != nil {
				return nil, err
			}
			err := env.ctx.Target().Frame(ctx, uint32(screen))
			switch {
			case errors.Is(err, target.ErrPaused):
				return starlark.MakeInt(i), nil
			case err != nil:
				return nil, decorateError(thread, err)
			}
		}
		return starlark.MakeInt(count), nil
	})

	env.builtin(pressBuiltinName, "(Buttons)", `presses Buttons, for example "start+select", for one input scan.`, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		buttons, err := parseButtons(s)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		env.ctx.Target().Press(buttons)
		return starlark.None, nil
	})

	env.builtin(holdBuiltinName, "(State...)", `queues one button state per input scan. An empty string releases every button.`, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}
		states := make([]horizon.Buttons, len(args))
		for i, a := range args {
			s, ok := starlark.AsString(a)
			if !ok {
				return nil, decorateError(thread, fmt.Errorf("argument %d of %s is not a string", i, b.Name()))
			}
			buttons, err := parseButtons(s)
			if err != nil {
				return nil, decorateError(thread, err)
			}
			states[i] = buttons
		}
		env.ctx.Target().Hold(states...)
		return starlark.None, nil
	})

	env.builtin(readBuiltinName, "(Addr, Size)", `reads Size bytes of game memory at Addr. Fewer bytes are returned when the region ends first.`, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var addr starlark.Int
		var size int
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &addr, &size); err != nil {
			return nil, err
		}
		a, err := toAddr(addr)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		if size < 0 {
			return nil, decorateError(thread, fmt.Errorf("negative size %d", size))
		}
		data, err := env.ctx.Target().ReadMemory(a, size)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.Bytes(data), nil
	})

	env.builtin(writeBuiltinName, "(Addr, Data)", `writes Data, bytes or a string, to game memory at Addr and returns the number of bytes written.`, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var addr starlark.Int
		var data starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &addr, &data); err != nil {
			return nil, err
		}
		a, err := toAddr(addr)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		var buf []byte
		switch d := data.(type) {
		case starlark.Bytes:
			buf = []byte(d)
		case starlark.String:
			buf = []byte(d)
		default:
			return nil, decorateError(thread, fmt.Errorf("cannot write a %s", data.Type()))
		}
		n, err := env.ctx.Target().WriteMemory(a, buf)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.MakeInt(n), nil
	})

	env.builtin(titleBuiltinName, "()", "returns the title id of the running game.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		title, err := env.ctx.Target().Title()
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.MakeUint64(uint64(title)), nil
	})

	env.builtin(overlayBuiltinName, "()", "returns the lines of text drawn on the last top screen frame.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		return stringList(env.ctx.Target().Overlay()), nil
	})

	env.builtin(statusBuiltinName, "()", "returns the service status after the last top screen frame.", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		st := env.ctx.Target().Status()
		errstr := starlark.Value(starlark.None)
		if st.Err != nil {
			errstr = starlark.String(st.Err.Error())
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"title":     starlark.MakeUint64(uint64(st.Title)),
			"plugin":    starlark.String(st.Plugin),
			"menu":      stringList(st.Menu),
			"menu_open": starlark.Bool(st.MenuOpen),
			"paused":    starlark.Bool(st.Paused),
			"output":    stringList(st.Output),
			"frames":    starlark.MakeUint64(st.Frames),
			"error":     errstr,
		}), nil
	})
}

func parseButtons(s string) (horizon.Buttons, error) {
	if s == "" {
		return 0, nil
	}
	b, ok := horizon.ParseButtons(s)
	if !ok {
		return 0, fmt.Errorf("unknown buttons %q", s)
	}
	return b, nil
}

func toAddr(v starlark.Int) (uint32, error) {
	a, ok := v.Uint64()
	if !ok || a > 0xffffffff {
		return 0, fmt.Errorf("address %s out of range", v)
	}
	return uint32(a), nil
}
