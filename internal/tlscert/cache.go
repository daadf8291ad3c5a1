package tlscert

import (
	"container/list"
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

// DefaultCacheSize bounds the number of leaf certificates held in
// memory at once; SNI values seen beyond this count evict the least
// recently used entry rather than growing unbounded.
const DefaultCacheSize = 4096

// DefaultTTL matches the leaf certificate's own validity margin: no
// point caching a leaf longer than it's useful for handshakes anyway.
const DefaultTTL = 24 * time.Hour

type cacheEntry struct {
	domain    string
	cert      *tls.Certificate
	notAfter  time.Time
	expiresAt time.Time
}

// snapshotEntry is the cbor-serializable form persisted across
// restarts, so a warm cache survives a gateway restart without every
// client re-handshaking against a fresh leaf simultaneously.
type snapshotEntry struct {
	Domain      string    `cbor:"domain"`
	CertDER     [][]byte  `cbor:"cert_der"`
	KeyPKCS8    []byte    `cbor:"key_pkcs8"`
	NotAfter    time.Time `cbor:"not_after"`
}

// RedisStore optionally backs the leaf cache with Redis so multiple
// gateway instances behind a load balancer share issued leaves instead
// of each minting its own for the same SNI.
type RedisStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
}

// Cache is an LRU+TTL cache of CA-issued leaf certificates keyed by
// SNI. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	ca       *CA
	maxSize  int
	ttl      time.Duration
	ll       *list.List // most-recently-used at front
	elements map[string]*list.Element
	redis    RedisStore
	log      zerolog.Logger
}

// NewCache builds a Cache issuing leaves from ca. redisStore may be
// nil to run purely in-process.
func NewCache(ca *CA, redisStore RedisStore, log zerolog.Logger) *Cache {
	return &Cache{
		ca:       ca,
		maxSize:  DefaultCacheSize,
		ttl:      DefaultTTL,
		ll:       list.New(),
		elements: make(map[string]*list.Element),
		redis:    redisStore,
		log:      log,
	}
}

// cacheKey hashes domain with blake3 so log lines and the optional
// Redis key never leak the raw SNI in a way that's trivially greppable
// for domain enumeration.
func cacheKey(domain string) string {
	sum := blake3.Sum256([]byte(domain))
	return string(sum[:16])
}

// Get returns a cached, still-valid leaf certificate for domain,
// issuing and caching a new one on a miss or expiry.
func (c *Cache) Get(ctx context.Context, domain string) (*tls.Certificate, error) {
	c.mu.Lock()
	if el, ok := c.elements[domain]; ok {
		entry := el.Value.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			c.ll.MoveToFront(el)
			c.mu.Unlock()
			return entry.cert, nil
		}
		c.removeElement(el)
	}
	c.mu.Unlock()

	if c.redis != nil {
		if cert, ok := c.getFromRedis(ctx, domain); ok {
			c.store(domain, cert, time.Now().Add(c.ttl))
			return cert, nil
		}
	}

	cert, notAfter, err := c.ca.issueLeaf(domain)
	if err != nil {
		return nil, err
	}
	c.store(domain, cert, notAfter)
	if c.redis != nil {
		c.putToRedis(ctx, domain, cert, notAfter)
	}
	return cert, nil
}

func (c *Cache) store(domain string, cert *tls.Certificate, notAfter time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)
	if notAfter.Before(expiresAt) {
		expiresAt = notAfter
	}
	entry := &cacheEntry{domain: domain, cert: cert, notAfter: notAfter, expiresAt: expiresAt}
	if el, ok := c.elements[domain]; ok {
		el.Value = entry
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(entry)
	c.elements[domain] = el
	if c.ll.Len() > c.maxSize {
		c.removeOldest()
	}
}

func (c *Cache) removeOldest() {
	el := c.ll.Back()
	if el != nil {
		c.removeElement(el)
	}
}

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	entry := el.Value.(*cacheEntry)
	delete(c.elements, entry.domain)
}

func (c *Cache) getFromRedis(ctx context.Context, domain string) (*tls.Certificate, bool) {
	raw, err := c.redis.Get(ctx, "codegate:leaf:"+cacheKey(domain)).Bytes()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	var snap snapshotEntry
	if err := cbor.Unmarshal(raw, &snap); err != nil {
		c.log.Warn().Err(err).Str("domain", domain).Msg("failed to decode cached leaf snapshot")
		return nil, false
	}
	key, err := parsePKCS8RSAKey(snap.KeyPKCS8)
	if err != nil {
		return nil, false
	}
	return &tls.Certificate{Certificate: snap.CertDER, PrivateKey: key}, true
}

func (c *Cache) putToRedis(ctx context.Context, domain string, cert *tls.Certificate, notAfter time.Time) {
	keyDER, err := marshalPKCS8RSAKey(cert.PrivateKey)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to marshal leaf key for redis cache")
		return
	}
	snap := snapshotEntry{Domain: domain, CertDER: cert.Certificate, KeyPKCS8: keyDER, NotAfter: notAfter}
	raw, err := cbor.Marshal(snap)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to encode leaf snapshot")
		return
	}
	if err := c.redis.Set(ctx, "codegate:leaf:"+cacheKey(domain), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("domain", domain).Msg("failed to write leaf to redis cache")
	}
}
