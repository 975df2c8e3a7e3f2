package agentkit

import (
	"time"

	"go.uber.org/zap"

	"github.com/aramb-dev/agentkit/internal/domain"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	redisAddrs    []string
	redisPassword string
	keyPrefix     string

	embedder domain.Embedder
	web      domain.WebSearcher

	chunkSize     int
	chunkOverlap  int
	cacheCapacity int
	cacheEnabled  bool
	defaultK      int
	queryTimeout  time.Duration
	webTimeout    time.Duration

	logger *zap.Logger
}

// WithRedis stores vectors in Redis instead of the in-process store.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisAddrs = []string{addr}
		c.redisPassword = password
	})
}

// WithKeyPrefix namespaces all Redis keys. Only meaningful with WithRedis.
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithEmbedder sets the embedding provider. Required.
func WithEmbedder(e domain.Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithWebSearcher enables hybrid retrieval against a web search provider.
// Without it, hybrid calls report the web section as unavailable.
func WithWebSearcher(w domain.WebSearcher) Option {
	return optionFunc(func(c *clientConfig) {
		c.web = w
	})
}

// WithChunking overrides the chunk window size and overlap.
func WithChunking(size, overlap int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
	})
}

// WithCacheCapacity sets the query cache capacity. Zero disables caching.
func WithCacheCapacity(capacity int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheCapacity = capacity
		c.cacheEnabled = capacity > 0
	})
}

// WithDefaultK sets how many chunks queries return by default.
func WithDefaultK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultK = k
	})
}

// WithQueryTimeout bounds a single retrieval end to end.
func WithQueryTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.queryTimeout = d
	})
}

// WithWebTimeout bounds the web sub-path of hybrid retrieval.
func WithWebTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.webTimeout = d
	})
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
