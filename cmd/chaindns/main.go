package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	cdns "github.com/chaindns/chaindns"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var opt struct {
	logLevel uint32
}

func main() {
	cmd := &cobra.Command{
		Use:   "chaindns",
		Short: "Chained-authority DNS server with blocklist sinkholing",
		Long: `Chained-authority DNS server with blocklist sinkholing.

Each zone is served by an ordered chain of stores. A query walks
the chain until a store answers; stores without an opinion pass
the query on to the next one. Blocklist stores placed at the head
of a chain sinkhole listed names before any forwarder or recursor
behind them is consulted.
`,
		Example:      `  chaindns config.toml`,
		Args:         cobra.ExactArgs(1),
		RunE:         func(cmd *cobra.Command, args []string) error { return start(args) },
		SilenceUsage: true,
	}
	cmd.Flags().Uint32Var(&opt.logLevel, "log-level", 4, "log level; 0=panic, 4=info, 6=trace")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func start(args []string) error {
	config, err := loadConfig(args[0])
	if err != nil {
		return err
	}
	cdns.Log.SetLevel(logrus.Level(opt.logLevel))

	// Build every zone's chain from the config. The store order in the
	// config is the dispatch order and is preserved as-is.
	var chains []*cdns.AuthorityChain
	for _, z := range config.Zones {
		var stores []cdns.Authority
		for i, s := range z.Stores {
			id := fmt.Sprintf("%s%s-%d", z.Origin, s.Type, i)
			store, err := makeStore(id, z.Origin, s)
			if err != nil {
				return errors.Wrapf(err, "failed to build store %d in zone '%s'", i, z.Origin)
			}
			stores = append(stores, store)
		}
		chains = append(chains, cdns.NewAuthorityChain(z.Origin, z.Origin, stores...))
	}
	zones, err := cdns.NewZoneSet(chains...)
	if err != nil {
		return err
	}

	if len(config.Listeners) == 0 {
		return errors.New("no listeners defined in config")
	}

	var g errgroup.Group
	for id, l := range config.Listeners {
		var lopt cdns.ListenOptions
		for _, s := range l.AllowedNet {
			_, n, err := net.ParseCIDR(s)
			if err != nil {
				return errors.Wrapf(err, "invalid allowed-net in listener '%s'", id)
			}
			lopt.AllowedNet = append(lopt.AllowedNet, n)
		}
		var ln cdns.Listener
		switch l.Protocol {
		case "", "udp":
			ln = cdns.NewDNSListener(id, l.Address, "udp", lopt, zones)
		case "tcp":
			ln = cdns.NewDNSListener(id, l.Address, "tcp", lopt, zones)
		default:
			return errors.Errorf("unsupported protocol '%s' for listener '%s'", l.Protocol, id)
		}
		g.Go(ln.Start)
	}
	return g.Wait()
}

// Build one store from its config element.
func makeStore(id, origin string, s store) (cdns.Authority, error) {
	switch s.Type {
	case "file":
		return cdns.NewFileAuthority(id, cdns.FileAuthorityOptions{
			Origin:      origin,
			File:        s.File,
			AXFRAllowed: s.AXFRAllowed,
		})
	case "bolt":
		return cdns.NewBoltAuthority(id, cdns.BoltAuthorityOptions{
			Origin:      origin,
			File:        s.File,
			AXFRAllowed: s.AXFRAllowed,
		})
	case "forward":
		return cdns.NewForwardAuthority(id, s.Address, cdns.ForwardAuthorityOptions{
			Origin:    origin,
			Network:   s.Protocol,
			Timeout:   s.Timeout.Duration,
			CacheSize: s.CacheSize,
		})
	case "recursor":
		return cdns.NewRecursorAuthority(id, origin), nil
	case "blocklist":
		var loaders []cdns.BlocklistLoader
		for _, list := range s.Lists {
			path := list
			if s.RootDir != "" && !filepath.IsAbs(list) {
				path = filepath.Join(s.RootDir, list)
			}
			loaders = append(loaders, cdns.NewFileLoader(path, cdns.FileLoaderOptions{AllowFailure: s.AllowFailure}))
		}
		policy := cdns.SinkholeNullAddress
		switch s.Policy {
		case "", "null-address":
		case "nodata":
			policy = cdns.SinkholeNoData
		default:
			return nil, errors.Errorf("unsupported sinkhole policy '%s'", s.Policy)
		}
		var addr net.IP
		if s.SinkholeAddress != "" {
			if addr = net.ParseIP(s.SinkholeAddress); addr == nil {
				return nil, errors.Errorf("invalid sinkhole-address '%s'", s.SinkholeAddress)
			}
		}
		return cdns.NewBlocklistAuthority(id, origin, loaders, cdns.BlocklistAuthorityOptions{
			WildcardMatch:    s.WildcardMatch,
			MinWildcardDepth: s.MinWildcardDepth,
			Refresh:          s.Refresh.Duration,
			Watch:            s.Watch,
			Policy:           policy,
			SinkholeAddr:     addr,
		})
	default:
		return nil, errors.Errorf("unsupported store type '%s'", s.Type)
	}
}
