package transport

// In-process deployments need no adapter type here: *cacheserver.Handler
// and *dbstore.Store each implement CacheStub and DBStub directly, so
// the rpc fabric can hold them as stubs with no network hop. Those
// packages already import transport, so documenting the pattern here
// (rather than a wrapper type) avoids an import cycle.
