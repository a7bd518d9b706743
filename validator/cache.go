package validator

import (
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	gocache "github.com/patrickmn/go-cache"
)

// CertCache memoizes certificates that already passed validation, so
// repeated validations of the same signer skip the fetch and the
// recursive chain walk. Implementations must be safe for concurrent
// use; the validator tolerates racing inserts for the same name and
// leaves the winner to the cache.
type CertCache interface {
	// Lookup returns a previously validated certificate for the name,
	// which may be a certificate name or a key locator, or nil.
	Lookup(name enc.Name) ndn.Data
	// Insert memoizes a validated certificate for at most ttl.
	Insert(cert ndn.Data, ttl time.Duration)
}

// TtlCertCache is the default CertCache. A certificate is stored under
// its own name, its key name with issuer, and its bare key name, so a
// key locator of any precision hits.
type TtlCertCache struct {
	store *gocache.Cache
}

func NewTtlCertCache(defaultTtl time.Duration) *TtlCertCache {
	return &TtlCertCache{
		store: gocache.New(defaultTtl, defaultTtl),
	}
}

func (c *TtlCertCache) Lookup(name enc.Name) ndn.Data {
	if v, ok := c.store.Get(name.TlvStr()); ok {
		return v.(ndn.Data)
	}
	return nil
}

func (c *TtlCertCache) Insert(cert ndn.Data, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	name := cert.Name()
	c.store.Set(name.TlvStr(), cert, ttl)
	if len(name) >= 2 {
		c.store.Set(name.Prefix(-1).TlvStr(), cert, ttl)
		c.store.Set(name.Prefix(-2).TlvStr(), cert, ttl)
	}
}
