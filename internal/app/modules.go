package app

import (
	"io"

	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/modules/env_vars"
	"github.com/vk/blockgrid/modules/http_client"
	"github.com/vk/blockgrid/modules/math"
	"github.com/vk/blockgrid/modules/print"
	"github.com/vk/blockgrid/modules/programs"
	"github.com/vk/blockgrid/modules/socketio"
	"github.com/vk/blockgrid/modules/text"
)

// coreModules is the definitive list of all modules that are compiled into
// the blockgrid binary. print writes to out.
func coreModules(out io.Writer) []registry.Module {
	return []registry.Module{
		&env_vars.Module{},
		&print.Module{Out: out},
		&math.Module{},
		&text.Module{},
		&http_client.Module{},
		&socketio.Module{},
		&programs.Module{},
	}
}
