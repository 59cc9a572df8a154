package wasm

import (
	"context"

	extism "github.com/extism/go-sdk"
)

// compiledPlugin abstracts extism.CompiledPlugin so the evaluator can be tested without a module.
type compiledPlugin interface {
	Instance(ctx context.Context, config extism.PluginInstanceConfig) (pluginInstance, error)
	Close(ctx context.Context) error
}

// pluginInstance abstracts extism.Plugin.
type pluginInstance interface {
	CallWithContext(ctx context.Context, name string, data []byte) (uint32, []byte, error)
	FunctionExists(name string) bool
	Close(ctx context.Context) error
}

type sdkCompiledPlugin struct {
	plugin *extism.CompiledPlugin
}

func (a *sdkCompiledPlugin) Instance(ctx context.Context, config extism.PluginInstanceConfig) (pluginInstance, error) {
	instance, err := a.plugin.Instance(ctx, config)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func (a *sdkCompiledPlugin) Close(ctx context.Context) error {
	return a.plugin.Close(ctx)
}

// compileManifest compiles the module described by manifest.
func compileManifest(ctx context.Context, manifest extism.Manifest, config extism.PluginConfig) (compiledPlugin, error) {
	plugin, err := extism.NewCompiledPlugin(ctx, manifest, config, nil)
	if err != nil {
		return nil, err
	}
	return &sdkCompiledPlugin{plugin: plugin}, nil
}
