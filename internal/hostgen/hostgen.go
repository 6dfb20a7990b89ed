// Package hostgen draws random IPv4 addresses, filters them through the
// blacklists and the address cache, and reverse-resolves the survivors
// into Hosts for the store. A HostGenerator is single-owner: each
// ParallelGenerator worker keeps one of its own so the cache
// transaction and the resolver are never shared across goroutines.
package hostgen

import (
	"fmt"
	"log"
	"math/rand"
	"net/netip"
	"time"

	"github.com/krylon/pykuang/internal/blacklist"
	"github.com/krylon/pykuang/internal/cache"
	"github.com/krylon/pykuang/internal/model"
	"github.com/krylon/pykuang/internal/resolve"
	"github.com/krylon/pykuang/pkg/applog"
)

// ipCacheTTL is how long a drawn address is remembered before it may be
// drawn again. Zero in the original design (entries never expire); kept
// as a named constant here so a future release can tune it without
// touching call sites.
const ipCacheTTL = 0

// HostGenerator produces random, previously-unseen, non-blacklisted
// Hosts by drawing addresses and reverse-resolving them.
type HostGenerator struct {
	cache  *cache.Bucket
	blAddr *blacklist.IPBlacklist
	blName *blacklist.NameBlacklist
	res    *resolve.Resolver
	log    *log.Logger
	rng    *rand.Rand
}

// New creates a HostGenerator drawing addresses from env's IPCache
// bucket and filtering through the default blacklists.
func New(env *cache.Environment) (*HostGenerator, error) {
	bucket, err := env.Bucket(cache.IPCacheBucket, ipCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("hostgen: open cache bucket: %w", err)
	}

	return &HostGenerator{
		cache:  bucket,
		blAddr: blacklist.DefaultIPBlacklist(),
		blName: blacklist.DefaultNameBlacklist(),
		res:    resolve.New(nil),
		log:    applog.Get("generator"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// GenerateIP draws a random IPv4 address that is not well-known-blocked,
// not on the network blacklist, and not already present in the cache.
// The winning address is recorded in the cache before it is returned.
// IPv6 generation is not implemented.
func (g *HostGenerator) GenerateIP() (netip.Addr, error) {
	var (
		addr  netip.Addr
		attempts int
	)

	err := g.cache.Update(func(tx *cache.Tx) error {
		for {
			attempts++
			var octets [4]byte
			g.rng.Read(octets[:])
			candidate := netip.AddrFrom4(octets)

			if blacklist.IsWellKnownBlocked(candidate) || g.blAddr.Match(candidate) {
				continue
			}
			if tx.Contains([]byte(candidate.String())) {
				continue
			}
			if err := tx.MarkSeen(candidate.String()); err != nil {
				return err
			}
			addr = candidate
			return nil
		}
	})
	if err != nil {
		return netip.Addr{}, fmt.Errorf("hostgen: generate ip: %w", err)
	}

	g.log.Printf("generated address %s in %d attempts", addr, attempts)
	return addr, nil
}

// ResolveName reverse-resolves addr into a hostname. It reports absent,
// never an error, for NXDOMAIN, an empty answer, a timeout, or an
// unreachable resolver.
func (g *HostGenerator) ResolveName(addr netip.Addr) (string, bool) {
	return g.res.LookupPTR(addr)
}

// GenerateHost draws addresses and resolves them until it finds one
// whose name clears the name blacklist, and returns it as a
// Generator-sourced Host. It loops indefinitely by design; throughput
// is bounded at the worker-pool level, not here.
func (g *HostGenerator) GenerateHost() (*model.Host, error) {
	for {
		addr, err := g.GenerateIP()
		if err != nil {
			return nil, err
		}

		name, ok := g.ResolveName(addr)
		if !ok {
			continue
		}
		if g.blName.Match(name) {
			g.log.Printf("address %s resolves to %s, which is blacklisted", addr, name)
			continue
		}

		return &model.Host{
			Name: name,
			Addr: addr,
			Src:  model.SrcGenerator,
		}, nil
	}
}
