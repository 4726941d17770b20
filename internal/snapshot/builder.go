// Package snapshot merges scan data, the address table and gateway latency
// into one Snapshot per measurement cycle.
package snapshot

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"wifirtt/internal/logging"
	"wifirtt/internal/model"
	"wifirtt/internal/stunutil"
)

// Topology supplies the scan and the address table.
type Topology interface {
	FetchScan(ctx context.Context) (model.ScanResult, error)
	FetchAddressTable(ctx context.Context) []model.AddressEntry
}

// Measurer probes one host with both techniques.
type Measurer interface {
	MeasureHost(ctx context.Context, host string) model.HostLatency
}

// PublicAddrFunc discovers the public mapping of this host.
type PublicAddrFunc func(ctx context.Context) (stunutil.Result, error)

// STUNLookup returns a PublicAddrFunc querying servers, or nil when servers is
// empty.
func STUNLookup(servers []string, timeout time.Duration) PublicAddrFunc {
	if len(servers) == 0 {
		return nil
	}
	return func(ctx context.Context) (stunutil.Result, error) {
		return stunutil.Probe(ctx, servers, timeout)
	}
}

// Builder is stateless between calls; every Build is independent.
type Builder struct {
	topology   Topology
	measurer   Measurer
	publicAddr PublicAddrFunc
	log        *slog.Logger
	now        func() time.Time
}

// NewBuilder wires the collaborators. publicAddr may be nil.
func NewBuilder(topology Topology, measurer Measurer, publicAddr PublicAddrFunc, log *slog.Logger) *Builder {
	return &Builder{
		topology:   topology,
		measurer:   measurer,
		publicAddr: publicAddr,
		log:        logging.Or(log),
		now:        time.Now,
	}
}

// Build runs one measurement cycle. The scan, the address table and the STUN
// lookup run concurrently; gateway probing starts once the scan names a
// gateway. Only a scan failure is returned; everything else degrades to an
// empty or absent field.
func (b *Builder) Build(ctx context.Context) (model.Snapshot, error) {
	start := b.now()

	var (
		scan    model.ScanResult
		gateway *model.HostLatency
		table   []model.AddressEntry
		public  stunutil.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		scan, err = b.topology.FetchScan(gctx)
		if err != nil {
			return err
		}
		if ip, ok := scan.Gateway(); ok {
			hl := b.measurer.MeasureHost(gctx, ip)
			gateway = &hl
		}
		return nil
	})
	g.Go(func() error {
		table = b.topology.FetchAddressTable(gctx)
		return nil
	})
	if b.publicAddr != nil {
		g.Go(func() error {
			res, err := b.publicAddr(gctx)
			if err != nil {
				b.log.Debug("public address lookup failed", "err", err)
				return nil
			}
			public = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}

	if table == nil {
		table = []model.AddressEntry{}
	}
	snap := model.Snapshot{
		ScanResult: scan,
		ArpTable:   table,
		GatewayRTT: gateway,
		PublicAddr: public.PublicAddr,
		NATType:    public.NATType,
	}
	b.log.Debug("snapshot built",
		"networks", len(scan.Networks),
		"arp_entries", len(table),
		"gateway", gateway != nil,
		"elapsed", b.now().Sub(start))
	return snap, nil
}
