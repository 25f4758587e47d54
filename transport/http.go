package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// httpClient is shared across all HTTP stubs for connection reuse,
// mirroring _examples/johnjansen-torua/internal/cluster/types.go's
// package-level client.
var httpClient = &http.Client{Timeout: 10 * time.Second}

func postJSON(ctx context.Context, url string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: http %s: status %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HTTPCacheStub is a CacheStub that speaks JSON-over-HTTP to one cache
// server process, POSTing to fixed sub-paths under BaseURL.
type HTTPCacheStub struct {
	BaseURL string
}

func NewHTTPCacheStub(baseURL string) *HTTPCacheStub { return &HTTPCacheStub{BaseURL: baseURL} }

func (s *HTTPCacheStub) CacheGet(ctx context.Context, req CacheGetRequest) (CacheGetResponse, error) {
	var out CacheGetResponse
	err := postJSON(ctx, s.BaseURL+"/cache/get", req, &out)
	return out, err
}

func (s *HTTPCacheStub) CacheSet(ctx context.Context, req CacheSetRequest) (CacheSetResponse, error) {
	var out CacheSetResponse
	err := postJSON(ctx, s.BaseURL+"/cache/set", req, &out)
	return out, err
}

func (s *HTTPCacheStub) CacheSetTTL(ctx context.Context, req CacheSetTTLRequest) (CacheSetTTLResponse, error) {
	var out CacheSetTTLResponse
	err := postJSON(ctx, s.BaseURL+"/cache/set_ttl", req, &out)
	return out, err
}

func (s *HTTPCacheStub) CacheGetMR(ctx context.Context) (CacheGetMRResponse, error) {
	var out CacheGetMRResponse
	err := postJSON(ctx, s.BaseURL+"/cache/get_mr", struct{}{}, &out)
	return out, err
}

func (s *HTTPCacheStub) CacheInvalidate(ctx context.Context, req CacheInvalidateRequest) (CacheInvalidateResponse, error) {
	var out CacheInvalidateResponse
	err := postJSON(ctx, s.BaseURL+"/cache/invalidate", req, &out)
	return out, err
}

func (s *HTTPCacheStub) CacheUpdate(ctx context.Context, req CacheUpdateRequest) (CacheUpdateResponse, error) {
	var out CacheUpdateResponse
	err := postJSON(ctx, s.BaseURL+"/cache/update", req, &out)
	return out, err
}

func (s *HTTPCacheStub) CacheGetFreshnessStats(ctx context.Context) (CacheFreshnessStatsResponse, error) {
	var out CacheFreshnessStatsResponse
	err := postJSON(ctx, s.BaseURL+"/cache/freshness_stats", struct{}{}, &out)
	return out, err
}

var _ CacheStub = (*HTTPCacheStub)(nil)

// HTTPDBStub is a DBStub that speaks JSON-over-HTTP to one backing
// store process.
type HTTPDBStub struct {
	BaseURL string
}

func NewHTTPDBStub(baseURL string) *HTTPDBStub { return &HTTPDBStub{BaseURL: baseURL} }

func (s *HTTPDBStub) DBGet(ctx context.Context, req DBGetRequest) (DBGetResponse, error) {
	var out DBGetResponse
	err := postJSON(ctx, s.BaseURL+"/db/get", req, &out)
	return out, err
}

func (s *HTTPDBStub) DBPut(ctx context.Context, req DBPutRequest) (DBPutResponse, error) {
	var out DBPutResponse
	err := postJSON(ctx, s.BaseURL+"/db/put", req, &out)
	return out, err
}

func (s *HTTPDBStub) DBDelete(ctx context.Context, req DBDeleteRequest) (DBDeleteResponse, error) {
	var out DBDeleteResponse
	err := postJSON(ctx, s.BaseURL+"/db/delete", req, &out)
	return out, err
}

func (s *HTTPDBStub) DBGetLoad(ctx context.Context) (DBLoadResponse, error) {
	var out DBLoadResponse
	err := postJSON(ctx, s.BaseURL+"/db/load", struct{}{}, &out)
	return out, err
}

func (s *HTTPDBStub) DBStartRecord(ctx context.Context) (DBStartRecordResponse, error) {
	var out DBStartRecordResponse
	err := postJSON(ctx, s.BaseURL+"/db/start_record", struct{}{}, &out)
	return out, err
}

func (s *HTTPDBStub) DBGetReadCount(ctx context.Context) (DBReadCountResponse, error) {
	var out DBReadCountResponse
	err := postJSON(ctx, s.BaseURL+"/db/read_count", struct{}{}, &out)
	return out, err
}

func (s *HTTPDBStub) DBGetWriteCount(ctx context.Context) (DBWriteCountResponse, error) {
	var out DBWriteCountResponse
	err := postJSON(ctx, s.BaseURL+"/db/write_count", struct{}{}, &out)
	return out, err
}

var _ DBStub = (*HTTPDBStub)(nil)
