package app

import (
	"io"

	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/modules/calc"
	"github.com/vk/nativebridge/modules/env_vars"
	"github.com/vk/nativebridge/modules/http_client"
	"github.com/vk/nativebridge/modules/print"
	"github.com/vk/nativebridge/modules/s3"
	"github.com/vk/nativebridge/modules/socketio"
	"github.com/vk/nativebridge/modules/timer"
)

// corePackage is the definitive list of all modules that are compiled into
// the binary. Modules hold state, so every App gets fresh instances.
type corePackage struct {
	out io.Writer
}

// Modules returns the core modules in registration order. s3 depends on
// http_client and must come after it.
func (p corePackage) Modules() []registry.Module {
	return []registry.Module{
		&calc.Module{},
		&env_vars.Module{},
		&print.Module{Out: p.out},
		&timer.Module{},
		&http_client.Module{},
		&s3.Module{},
		&socketio.Module{},
	}
}
