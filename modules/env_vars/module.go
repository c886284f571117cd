package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/types"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Name returns the module's registered name.
func (m *Module) Name() string { return "env_vars" }

// Functions returns the descriptors exported by env_vars.
func (m *Module) Functions() []*function.Function {
	return []*function.Function{
		function.NewSync("get", []types.Descriptor{types.String}, onGet),
		function.NewSync("all", nil, onAll),
	}
}

// onGet returns the variable's value, or nil when it is unset.
func onGet(_ context.Context, _ *holder.Holder, args []any) (any, error) {
	v, ok := os.LookupEnv(args[0].(string))
	if !ok {
		return nil, nil
	}
	return v, nil
}

func onAll(context.Context, *holder.Holder, []any) (any, error) {
	envMap := make(map[string]any)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = pair[1]
		}
	}
	return envMap, nil
}
