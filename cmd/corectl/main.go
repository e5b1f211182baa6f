// Command corectl runs a single core host: it loads a TOML
// configuration, loads or generates the host key, opens the UDP
// transport, and runs the core until SIGINT/SIGTERM. It opens no local
// client control socket, so no clients register with the core it runs.
// Flag parsing follows the teacher's own
// go.mod (and dolthub-dolt's) choice of gopkg.in/alecthomas/kingpin.v2
// over the standard flag package, with fatih/color for status output.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/jabolina/go-core/internal/config"
	"github.com/jabolina/go-core/internal/logging"
	"github.com/jabolina/go-core/internal/metrics"
	"github.com/jabolina/go-core/internal/xnet"
	"github.com/jabolina/go-core/pkg/core"
	"github.com/jabolina/go-core/pkg/core/types"
)

var (
	app        = kingpin.New("corectl", "Run a core overlay host.")
	configPath = app.Flag("config", "path to the TOML configuration file").Required().String()
	keyBits    = app.Flag("key-bits", "RSA key size to generate if no host key exists yet").Default("2048").Int()
)

func main() {
	app.Version(version.Print("corectl"))
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, file, err := config.Load(*configPath)
	if err != nil {
		fatal("loading configuration: %v", err)
	}

	log := logging.New(os.Stderr, file.LogLevel)
	rec := metrics.New(nil)

	identity, err := config.LoadHostIdentity(cfg.HostKeyPath, *keyBits)
	if err != nil {
		fatal("loading host identity: %v", err)
	}

	transport, err := xnet.Listen(file.ListenAddr, log)
	if err != nil {
		fatal("opening transport: %v", err)
	}
	defer transport.Close()

	resolver := &staticResolver{}

	host, err := core.New(cfg, identity, transport, resolver, log, rec)
	if err != nil {
		fatal("constructing core: %v", err)
	}

	color.Green("corectl: host %s listening on %s", identity.ID, file.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		color.Yellow("corectl: shutting down")
		cancel()
	}()

	host.Run(ctx)
}

func fatal(format string, args ...interface{}) {
	color.Red(format, args...)
	os.Exit(1)
}

// staticResolver is a placeholder types.PeerInfoResolver: real
// deployments inject a peer-info directory client; corectl on its own
// has no such directory, so every lookup fails.
type staticResolver struct{}

func (staticResolver) Lookup(ctx context.Context, peer types.PeerID, cb func(types.PublicKey, bool)) {
	cb(types.PublicKey{}, false)
}
