package worker

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dyluth/burrow/internal/command"
	"github.com/dyluth/burrow/internal/transform"
	"github.com/dyluth/burrow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upperScript = `
function transform(path, source)
	if string.find(source, "skip") then return nil end
	if string.find(source, "explode") then error("cannot handle " .. path) end
	return string.upper(source)
end
`

func newTestHandler() *Handler {
	reg := transform.DefaultRegistry()
	reg.Register(panicEngine{})
	reg.Register(binaryEngine{})
	return NewHandler(reg)
}

type panicEngine struct{}

func (panicEngine) Name() string { return "panic" }
func (panicEngine) Compile(string) (transform.Transformer, error) {
	return transform.TransformerFunc(func(ctx context.Context, path, source string) (transform.Output, error) {
		panic("unexpected state")
	}), nil
}

type binaryEngine struct{}

func (binaryEngine) Name() string { return "binary" }
func (binaryEngine) Compile(string) (transform.Transformer, error) {
	return transform.TransformerFunc(func(ctx context.Context, path, source string) (transform.Output, error) {
		return transform.Output{Unchanged: true, Created: []transform.File{{Path: "a.bin", Data: "\xff\xfe"}}}, nil
	}), nil
}

func dispatch(path, data string) protocol.Dispatch {
	return protocol.Dispatch{
		Path:              path,
		Data:              data,
		Engine:            "lua",
		TransformerSource: upperScript,
		CaseID:            "upper",
	}
}

func TestHandler_Commands(t *testing.T) {
	h := newTestHandler()

	reply := h.Handle(context.Background(), dispatch("a.txt", "hello\n"))

	cmds, ok := reply.(protocol.Commands)
	require.True(t, ok, "expected Commands, got %T", reply)
	require.Len(t, cmds.Commands, 1)

	cmd := cmds.Commands[0]
	assert.Equal(t, protocol.CommandUpdate, cmd.Kind)
	assert.Equal(t, "a.txt", cmd.Path)
	assert.Equal(t, "HELLO\n", cmd.NewData)
	assert.Equal(t, "upper", cmd.CaseID)
	require.NotNil(t, cmd.Patch)
	assert.Empty(t, cmd.StagedPath)
}

func TestHandler_NoChangeIsIdle(t *testing.T) {
	h := newTestHandler()

	t.Run("nil from transformer", func(t *testing.T) {
		reply := h.Handle(context.Background(), dispatch("a.txt", "please skip"))
		assert.Equal(t, protocol.Idle{}, reply)
	})

	t.Run("identical output", func(t *testing.T) {
		reply := h.Handle(context.Background(), dispatch("a.txt", "ALREADY UPPER"))
		assert.Equal(t, protocol.Idle{}, reply)
	})
}

func TestHandler_Errors(t *testing.T) {
	h := newTestHandler()

	t.Run("transform failure is tagged", func(t *testing.T) {
		reply := h.Handle(context.Background(), dispatch("bad.txt", "explode"))
		e, ok := reply.(protocol.Error)
		require.True(t, ok, "expected Error, got %T", reply)
		assert.Equal(t, "bad.txt", e.Path)
		assert.Equal(t, "upper", e.CaseID)
		assert.Contains(t, e.Message, "cannot handle bad.txt")
	})

	t.Run("compile failure", func(t *testing.T) {
		d := dispatch("a.txt", "x")
		d.TransformerSource = "function ("
		e, ok := h.Handle(context.Background(), d).(protocol.Error)
		require.True(t, ok)
		assert.Contains(t, e.Message, "failed to compile lua transformer")
	})

	t.Run("unknown engine", func(t *testing.T) {
		d := dispatch("a.txt", "x")
		d.Engine = "nope"
		e, ok := h.Handle(context.Background(), d).(protocol.Error)
		require.True(t, ok)
		assert.Contains(t, e.Message, "unknown transform engine")
	})

	t.Run("invalid UTF-8 output", func(t *testing.T) {
		d := dispatch("a.txt", "x")
		d.TransformerSource = `function transform(path, source) return source .. "\255\n" end`
		e, ok := h.Handle(context.Background(), d).(protocol.Error)
		require.True(t, ok)
		assert.Equal(t, "a.txt", e.Path)
		assert.Contains(t, e.Message, "not valid UTF-8")
	})

	t.Run("invalid UTF-8 created file", func(t *testing.T) {
		d := dispatch("a.txt", "x")
		d.Engine = "binary"
		e, ok := h.Handle(context.Background(), d).(protocol.Error)
		require.True(t, ok)
		assert.Contains(t, e.Message, "created file a.bin is not valid UTF-8")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		d := dispatch("a.txt", "x")
		d.Engine = "panic"
		e, ok := h.Handle(context.Background(), d).(protocol.Error)
		require.True(t, ok)
		assert.Contains(t, e.Message, "transformer panicked")
	})
}

func TestHandler_Staged(t *testing.T) {
	h := newTestHandler()
	d := dispatch("src/a.txt", "hello")
	d.Staged = true
	d.OutputDirectory = "/tmp/staged"

	cmds, ok := h.Handle(context.Background(), d).(protocol.Commands)
	require.True(t, ok)
	assert.Equal(t, command.StagingPath("/tmp/staged", "src/a.txt", "upper"), cmds.Commands[0].StagedPath)
}

func TestHandler_FormatOnApply(t *testing.T) {
	h := newTestHandler()
	d := protocol.Dispatch{
		Path:              "main.go",
		Data:              "package main\n",
		Engine:            "lua",
		TransformerSource: `function transform(path, source) return source .. "func   f( ) {  }\n" end`,
		CaseID:            "fmt",
		FormatOnApply:     true,
	}

	cmds, ok := h.Handle(context.Background(), d).(protocol.Commands)
	require.True(t, ok)
	assert.Equal(t, "package main\n\nfunc f() {}\n", cmds.Commands[0].NewData)

	d.TransformerSource = `function transform(path, source) return "package main\nfunc {" end`
	e, ok := h.Handle(context.Background(), d).(protocol.Error)
	require.True(t, ok)
	assert.Contains(t, e.Message, "failed to format main.go")
}

func TestHandler_DefaultsCaseIDToEngine(t *testing.T) {
	h := newTestHandler()
	d := dispatch("a.txt", "x")
	d.CaseID = ""

	cmds, ok := h.Handle(context.Background(), d).(protocol.Commands)
	require.True(t, ok)
	assert.Equal(t, "lua", cmds.Commands[0].CaseID)
}

func TestServe(t *testing.T) {
	h := newTestHandler()

	var in bytes.Buffer
	for _, m := range []protocol.Message{
		dispatch("a.txt", "abc"),
		dispatch("b.txt", "skip me"),
		dispatch("c.txt", "explode"),
		protocol.Exit{},
		dispatch("never.txt", "unreached"),
	} {
		require.NoError(t, protocol.WriteMessage(&in, m))
	}

	var out bytes.Buffer
	require.NoError(t, Serve(context.Background(), &in, &out, h))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 3, "exactly one reply per dispatch before exit")

	kinds := make([]protocol.Kind, 0, len(lines))
	for _, line := range lines {
		msg, err := protocol.Decode([]byte(line))
		require.NoError(t, err)
		kinds = append(kinds, msg.Kind())
	}
	assert.Equal(t, []protocol.Kind{protocol.KindCommands, protocol.KindIdle, protocol.KindError}, kinds)
}

func TestServe_EndOfInput(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Serve(context.Background(), strings.NewReader(""), &out, newTestHandler()))
	assert.Empty(t, out.String())
}

func TestServe_RejectsBadInput(t *testing.T) {
	t.Run("malformed line", func(t *testing.T) {
		var out bytes.Buffer
		err := Serve(context.Background(), strings.NewReader("{not json}\n"), &out, newTestHandler())
		require.Error(t, err)
		assert.True(t, protocol.IsDecodeError(err))
	})

	t.Run("wrong direction", func(t *testing.T) {
		var in, out bytes.Buffer
		require.NoError(t, protocol.WriteMessage(&in, protocol.Idle{}))
		err := Serve(context.Background(), &in, &out, newTestHandler())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected idle message")
	})
}
