package transport

import "context"

// CacheStub is the client-side handle to one cache shard. One stub is
// held per shard (spec.md §4.3 "the client holds a vector of stubs per
// service"); the async RPC fabric picks a stub by hash(key) mod
// len(stubs) for keyed operations and round-robins across all stubs
// for non-keyed ones.
type CacheStub interface {
	CacheGet(ctx context.Context, req CacheGetRequest) (CacheGetResponse, error)
	CacheSet(ctx context.Context, req CacheSetRequest) (CacheSetResponse, error)
	CacheSetTTL(ctx context.Context, req CacheSetTTLRequest) (CacheSetTTLResponse, error)
	CacheGetMR(ctx context.Context) (CacheGetMRResponse, error)
	CacheInvalidate(ctx context.Context, req CacheInvalidateRequest) (CacheInvalidateResponse, error)
	CacheUpdate(ctx context.Context, req CacheUpdateRequest) (CacheUpdateResponse, error)
	CacheGetFreshnessStats(ctx context.Context) (CacheFreshnessStatsResponse, error)
}

// DBStub is the client-side handle to the backing store.
type DBStub interface {
	DBGet(ctx context.Context, req DBGetRequest) (DBGetResponse, error)
	DBPut(ctx context.Context, req DBPutRequest) (DBPutResponse, error)
	DBDelete(ctx context.Context, req DBDeleteRequest) (DBDeleteResponse, error)
	DBGetLoad(ctx context.Context) (DBLoadResponse, error)
	DBStartRecord(ctx context.Context) (DBStartRecordResponse, error)
	DBGetReadCount(ctx context.Context) (DBReadCountResponse, error)
	DBGetWriteCount(ctx context.Context) (DBWriteCountResponse, error)
}
