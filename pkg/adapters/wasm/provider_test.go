package wasm

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	extism "github.com/extism/go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/svoctor/lisper-go/pkg/ports"
)

type mockInstance struct {
	exports map[string]func(data []byte) (uint32, []byte, error)
	closed  *atomic.Int32
}

func (m *mockInstance) CallWithContext(ctx context.Context, name string, data []byte) (uint32, []byte, error) {
	fn, ok := m.exports[name]
	if !ok {
		return 1, nil, errors.New("unknown function " + name)
	}
	if err := ctx.Err(); err != nil {
		return 1, nil, err
	}
	return fn(data)
}

func (m *mockInstance) FunctionExists(name string) bool {
	_, ok := m.exports[name]
	return ok
}

func (m *mockInstance) Close(ctx context.Context) error {
	m.closed.Add(1)
	return nil
}

type mockPlugin struct {
	exports   map[string]func(data []byte) (uint32, []byte, error)
	instances atomic.Int32
	closed    atomic.Int32
	released  atomic.Bool
}

func (m *mockPlugin) Instance(ctx context.Context, config extism.PluginInstanceConfig) (pluginInstance, error) {
	m.instances.Add(1)
	return &mockInstance{exports: m.exports, closed: &m.closed}, nil
}

func (m *mockPlugin) Close(ctx context.Context) error {
	m.released.Store(true)
	return nil
}

func echoPlugin() *mockPlugin {
	return &mockPlugin{exports: map[string]func([]byte) (uint32, []byte, error){
		"run": func(data []byte) (uint32, []byte, error) {
			if string(data) == "(+ 1 1)" {
				return 0, []byte("2"), nil
			}
			return 0, []byte("error: unbound symbol"), nil
		},
		"trap": func(data []byte) (uint32, []byte, error) {
			return 1, nil, errors.New("wasm error: unreachable")
		},
		"exit": func(data []byte) (uint32, []byte, error) {
			return 3, nil, nil
		},
	}}
}

func withPlugin(plugin compiledPlugin, captured *extism.Manifest) Option {
	return func(p *Provider) {
		p.compile = func(ctx context.Context, m extism.Manifest, c extism.PluginConfig) (compiledPlugin, error) {
			if captured != nil {
				*captured = m
			}
			return plugin, nil
		}
	}
}

func TestProvider_AcquireAndRun(t *testing.T) {
	plugin := echoPlugin()
	p := NewProvider(FromBytes([]byte("fake")), withPlugin(plugin, nil))
	assert.Equal(t, "wasm", p.Name())

	ev, err := p.Acquire(context.Background())
	require.NoError(t, err)

	out, err := ev.Run(context.Background(), "(+ 1 1)")
	require.NoError(t, err)
	assert.Equal(t, "2", out)

	out, err = ev.Run(context.Background(), "(foo)")
	require.NoError(t, err, "Lisp errors are output, not failures")
	assert.Equal(t, "error: unbound symbol", out)

	// One instance for the entrypoint check, one per Run, all closed.
	assert.Equal(t, int32(3), plugin.instances.Load())
	assert.Equal(t, int32(3), plugin.closed.Load())
}

func TestProvider_MissingEntrypoint(t *testing.T) {
	plugin := echoPlugin()
	p := NewProvider(FromBytes([]byte("fake")), withPlugin(plugin, nil), WithEntrypoint("evaluate"))

	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, ports.ErrEvaluatorMissingEntrypoint)
	assert.Contains(t, err.Error(), "evaluate")
	assert.True(t, plugin.released.Load(), "a rejected module is released")
}

func TestEvaluator_CallFailures(t *testing.T) {
	tests := []struct {
		entrypoint string
		wantErr    string
	}{
		{"trap", "evaluation failed: wasm error: unreachable"},
		{"exit", "evaluator exited with code 3"},
	}
	for _, tt := range tests {
		t.Run(tt.entrypoint, func(t *testing.T) {
			ev := &Evaluator{plugin: echoPlugin(), entrypoint: tt.entrypoint}
			_, err := ev.Run(context.Background(), "(+ 1 1)")
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestEvaluator_Cancelled(t *testing.T) {
	ev := &Evaluator{plugin: echoPlugin(), entrypoint: "run"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ev.Run(ctx, "(+ 1 1)")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluator_CloseReleasesPlugin(t *testing.T) {
	plugin := echoPlugin()
	ev := &Evaluator{plugin: plugin, entrypoint: "run"}
	require.NoError(t, ev.Close())
	assert.True(t, plugin.released.Load())
}

func TestProvider_Manifest(t *testing.T) {
	var manifest extism.Manifest
	p := NewProvider(FromFile("/opt/lisp.wasm"), withPlugin(echoPlugin(), &manifest), WithCallTimeout(2*time.Second))

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Len(t, manifest.Wasm, 1)
	file, ok := manifest.Wasm[0].(extism.WasmFile)
	require.True(t, ok)
	assert.Equal(t, "/opt/lisp.wasm", file.Path)
	assert.Equal(t, uint64(2000), manifest.Timeout)
}

func TestSource(t *testing.T) {
	_, err := Source{}.wasm()
	assert.ErrorIs(t, err, ErrNoModule)

	w, err := FromURL("https://example.com/lisp.wasm").wasm()
	require.NoError(t, err)
	assert.IsType(t, extism.WasmUrl{}, w)

	assert.Equal(t, "bytes(4)", FromBytes([]byte("abcd")).String())
}

func TestProvider_NoModule(t *testing.T) {
	_, err := NewProvider(Source{}).Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoModule)
}

func TestProvider_InvalidModule(t *testing.T) {
	p := NewProvider(FromBytes([]byte("definitely not wasm")))
	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile module")
}

func TestProvider_MissingFile(t *testing.T) {
	p := NewProvider(FromFile(filepath.Join(t.TempDir(), "absent.wasm")))
	_, err := p.Acquire(context.Background())
	assert.Error(t, err)
}
