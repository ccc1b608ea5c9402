package checker

import (
	"context"

	"github.com/nao1215/vpnprobe/internal/ports"
	"github.com/nao1215/vpnprobe/internal/probe"
	"github.com/nao1215/vpnprobe/internal/process"
)

// Launcher runs fn while a proxy process serves config on pair.
// Implementations must have stopped the process and removed its config
// before returning, on every path.
type Launcher interface {
	Launch(ctx context.Context, config []byte, pair ports.Pair, fn func(ctx context.Context) error) error
}

// Prober checks reachability through a local SOCKS5 endpoint.
type Prober interface {
	Check(ctx context.Context, socksAddr string) probe.Result
}

// SupervisorLauncher launches each candidate under its own process.Supervisor.
type SupervisorLauncher struct {
	// Binary is the resolved proxy binary path.
	Binary string

	// Options are applied to every supervisor.
	Options []process.Option
}

// Launch implements Launcher.
func (l SupervisorLauncher) Launch(ctx context.Context, config []byte, pair ports.Pair, fn func(ctx context.Context) error) error {
	return process.NewSupervisor(l.Binary, l.Options...).Run(ctx, config, pair, fn)
}
