package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/internal/types"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives printed values. Defaults to os.Stdout.
	Out io.Writer

	mu sync.Mutex
}

// Name returns the module's registered name.
func (m *Module) Name() string { return "print" }

// OnCreate defaults the output writer.
func (m *Module) OnCreate(context.Context, *registry.Registry) error {
	if m.Out == nil {
		m.Out = os.Stdout
	}
	return nil
}

// Functions returns the descriptors exported by print.
func (m *Module) Functions() []*function.Function {
	return []*function.Function{
		function.NewSync("print", []types.Descriptor{types.Any}, onPrint),
	}
}

// onPrint writes its argument. Objects are written one attribute per line,
// with keys sorted for consistent output.
func onPrint(ctx context.Context, h *holder.Holder, args []any) (any, error) {
	m, err := holder.InstanceOf[*Module](h)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("Printing input")

	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := args[0].(type) {
	case nil:
		_, err = fmt.Fprintln(m.Out, "      (null)")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err = fmt.Fprintf(m.Out, "      %s = %s\n", k, format(v[k])); err != nil {
				break
			}
		}
	default:
		_, err = fmt.Fprintf(m.Out, "      %s\n", format(v))
	}
	return nil, err
}

func format(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
