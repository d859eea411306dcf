// Package storage selects the persistence clients a process runs with.
package storage

import (
	"errors"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Tier names which client set a Tiered selection resolved to.
type Tier string

// Known tiers.
const (
	TierPrivileged Tier = "privileged"
	TierPublic     Tier = "public"
)

// Clients bundles the stores reachable with one set of credentials.
type Clients struct {
	Jobs scrape.JobStore
	Logs scrape.LogStore
}

func (c *Clients) usable() bool {
	return c != nil && c.Jobs != nil && c.Logs != nil
}

// Tiered is the client set chosen once at start-up.
type Tiered struct {
	Clients
	Tier Tier
}

// NewTiered prefers the privileged clients and falls back to the public ones.
func NewTiered(privileged, public *Clients) (Tiered, error) {
	switch {
	case privileged.usable():
		return Tiered{Clients: *privileged, Tier: TierPrivileged}, nil
	case public.usable():
		return Tiered{Clients: *public, Tier: TierPublic}, nil
	default:
		return Tiered{}, errors.New("no job/log store configured")
	}
}
