package transform

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// luaEntryPoint is the global function a Lua transformer must define.
const luaEntryPoint = "transform"

// LuaEngine runs transformers written in Lua.
//
// The script must define a global function transform(path, source). It may
// return:
//
//	nil                 leave the file unchanged
//	a string            the new contents
//	a table             any of: source (string), delete (bool),
//	                    rename (string), create (table of path -> contents)
//
// Only the base, package, table, string and math libraries are available.
type LuaEngine struct{}

func (LuaEngine) Name() string { return "lua" }

// Compile parses the script once and checks that it defines transform.
func (LuaEngine) Compile(source string) (Transformer, error) {
	chunk, err := parse.Parse(strings.NewReader(source), "transformer")
	if err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	proto, err := lua.Compile(chunk, "transformer")
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}

	t := &luaTransformer{proto: proto}

	// Load once up front so a missing entry point is a compile error.
	L := newLuaState()
	defer L.Close()
	if _, err := t.load(L); err != nil {
		return nil, err
	}

	return t, nil
}

// luaTransformer holds the compiled chunk. Each call gets its own LState,
// since states are not safe for concurrent use.
type luaTransformer struct {
	proto *lua.FunctionProto
}

func (t *luaTransformer) load(L *lua.LState) (lua.LValue, error) {
	L.Push(L.NewFunctionFromProto(t.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return nil, fmt.Errorf("failed to run script: %w", err)
	}
	fn := L.GetGlobal(luaEntryPoint)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("script must define a global function %q", luaEntryPoint)
	}
	return fn, nil
}

func (t *luaTransformer) Transform(ctx context.Context, path, source string) (Output, error) {
	L := newLuaState()
	defer L.Close()
	L.SetContext(ctx)

	fn, err := t.load(L)
	if err != nil {
		return Output{}, err
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(path), lua.LString(source)); err != nil {
		return Output{}, fmt.Errorf("transform failed: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	return luaOutput(ret)
}

func luaOutput(ret lua.LValue) (Output, error) {
	switch v := ret.(type) {
	case *lua.LNilType:
		return NoChange(), nil
	case lua.LString:
		return Rewrite(string(v)), nil
	case *lua.LTable:
		return luaTableOutput(v)
	default:
		return Output{}, fmt.Errorf("transform returned %s, expected nil, string or table", ret.Type())
	}
}

func luaTableOutput(tbl *lua.LTable) (Output, error) {
	out := NoChange()

	switch v := tbl.RawGetString("source").(type) {
	case *lua.LNilType:
	case lua.LString:
		out = Rewrite(string(v))
	default:
		return Output{}, fmt.Errorf("source must be a string, got %s", v.Type())
	}

	switch v := tbl.RawGetString("delete").(type) {
	case *lua.LNilType:
	case lua.LBool:
		out.Delete = bool(v)
	default:
		return Output{}, fmt.Errorf("delete must be a boolean, got %s", v.Type())
	}

	switch v := tbl.RawGetString("rename").(type) {
	case *lua.LNilType:
	case lua.LString:
		out.RenameTo = string(v)
	default:
		return Output{}, fmt.Errorf("rename must be a string, got %s", v.Type())
	}

	switch v := tbl.RawGetString("create").(type) {
	case *lua.LNilType:
	case *lua.LTable:
		var convErr error
		v.ForEach(func(k, val lua.LValue) {
			if convErr != nil {
				return
			}
			p, ok := k.(lua.LString)
			if !ok {
				convErr = fmt.Errorf("create keys must be paths, got %s", k.Type())
				return
			}
			data, ok := val.(lua.LString)
			if !ok {
				convErr = fmt.Errorf("create[%q] must be a string, got %s", string(p), val.Type())
				return
			}
			out.Created = append(out.Created, File{Path: string(p), Data: string(data)})
		})
		if convErr != nil {
			return Output{}, convErr
		}
		sortFiles(out.Created)
	default:
		return Output{}, fmt.Errorf("create must be a table, got %s", v.Type())
	}

	return out, nil
}

func newLuaState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	return L
}
