package falaipaw

import (
	"github.com/crim50n/falai-paw/internal/docloader"
	"github.com/crim50n/falai-paw/internal/httptransport"
	"github.com/crim50n/falai-paw/internal/kvstore/rediskv"
	"github.com/crim50n/falai-paw/internal/kvstore/sqlitekv"
	"github.com/crim50n/falai-paw/pkg/endpoint"
	"github.com/crim50n/falai-paw/pkg/kv"
	"github.com/crim50n/falai-paw/pkg/transport"
)

// NewLoader constructs a schema document loader using the internal
// implementation while keeping the concrete type hidden from consumers.
func NewLoader(options ...endpoint.LoaderOption) endpoint.Loader {
	cfg := endpoint.NewLoaderOptions(options...)
	return docloader.New(cfg)
}

// NewHTTPTransport constructs the net/http transport backed by the internal
// implementation.
func NewHTTPTransport(options ...transport.ClientOption) transport.Doer {
	cfg := transport.NewOptions(options...)
	return httptransport.New(cfg)
}

// NewSQLiteStore opens the persistent key-value store at path. An empty
// path opens an in-memory database. byteBudget caps total stored value
// bytes; zero means unlimited.
func NewSQLiteStore(path string, byteBudget int64) (kv.StoreCloser, error) {
	return sqlitekv.Open(path, sqlitekv.WithByteBudget(byteBudget))
}

// NewRedisStore connects to the shared Redis backend.
func NewRedisStore(addr, keyPrefix, password string, db int) (kv.StoreCloser, error) {
	return rediskv.New(rediskv.Config{
		Addr:      addr,
		KeyPrefix: keyPrefix,
		Password:  password,
		DB:        db,
	})
}

// NewRedisStoreFromEnv connects to Redis using PAW_REDIS_* environment
// configuration.
func NewRedisStoreFromEnv() (kv.StoreCloser, error) {
	return rediskv.NewFromEnv()
}
