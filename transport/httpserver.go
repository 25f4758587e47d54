package transport

import (
	"context"
	"encoding/json"
	"net/http"
)

// NewCacheHTTPHandler mounts handler's seven RPCs under the sub-paths
// HTTPCacheStub posts to, so any CacheStub implementation (typically
// *cacheserver.Handler) can be served over HTTP without that package
// depending on net/http itself.
func NewCacheHTTPHandler(handler CacheStub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cache/get", jsonHandler(handler.CacheGet))
	mux.HandleFunc("/cache/set", jsonHandler(handler.CacheSet))
	mux.HandleFunc("/cache/set_ttl", jsonHandler(handler.CacheSetTTL))
	mux.HandleFunc("/cache/get_mr", jsonHandlerNoRequest(handler.CacheGetMR))
	mux.HandleFunc("/cache/invalidate", jsonHandler(handler.CacheInvalidate))
	mux.HandleFunc("/cache/update", jsonHandler(handler.CacheUpdate))
	mux.HandleFunc("/cache/freshness_stats", jsonHandlerNoRequest(handler.CacheGetFreshnessStats))
	return mux
}

// NewDBHTTPHandler mounts a DBStub's seven RPCs (typically
// *dbstore.Store) under the sub-paths HTTPDBStub posts to.
func NewDBHTTPHandler(store DBStub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/db/get", jsonHandler(store.DBGet))
	mux.HandleFunc("/db/put", jsonHandler(store.DBPut))
	mux.HandleFunc("/db/delete", jsonHandler(store.DBDelete))
	mux.HandleFunc("/db/load", jsonHandlerNoRequest(store.DBGetLoad))
	mux.HandleFunc("/db/start_record", jsonHandlerNoRequest(store.DBStartRecord))
	mux.HandleFunc("/db/read_count", jsonHandlerNoRequest(store.DBGetReadCount))
	mux.HandleFunc("/db/write_count", jsonHandlerNoRequest(store.DBGetWriteCount))
	return mux
}

// jsonHandler adapts a (ctx, Req) (Resp, error) RPC method into an
// http.HandlerFunc that decodes the POST body as Req and writes Resp
// as JSON.
func jsonHandler[Req, Resp any](fn func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := fn(r.Context(), req)
		writeJSONResult(w, resp, err)
	}
}

// jsonHandlerNoRequest adapts a (ctx) (Resp, error) RPC method (the
// non-keyed RPCs, which carry no request fields).
func jsonHandlerNoRequest[Resp any](fn func(context.Context) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := fn(r.Context())
		writeJSONResult(w, resp, err)
	}
}

func writeJSONResult[Resp any](w http.ResponseWriter, resp Resp, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
