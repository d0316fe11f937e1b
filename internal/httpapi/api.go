package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"mockstash.org/internal/auth"
	"mockstash.org/internal/docstore"
	"mockstash.org/internal/obs"
)

// ReadyProbe reports backing store readiness (DB ping when one is wired).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer: scope resolution, document CRUD, token lifecycle,
// and identity endpoints around a docstore.Service.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	docs       docstore.Service
	auth       *auth.Service

	rateBurst  int
	ratePerSec int
}

// New wires all routes. Path precedence relies on literal segments winning
// over wildcards, so /login and /api/token are never swallowed by /{route}.
func New(rp ReadyProbe, version string, docs docstore.Service, authSvc *auth.Service) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		docs:       docs,
		auth:       authSvc,
		rateBurst:  100,
		ratePerSec: 10,
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// identity
	a.mux.HandleFunc("POST /login", a.handleLogin)
	a.mux.HandleFunc("POST /register", a.handleRegister)
	a.mux.HandleFunc("POST /change-password", a.handleChangePassword)
	a.mux.HandleFunc("GET /me", a.handleMe)

	// token lifecycle + token-scoped documents
	a.mux.HandleFunc("GET /api/token", a.handleIssueToken)
	a.mux.HandleFunc("POST /api/{token}/{route}", a.handleTokenCreate)
	a.mux.HandleFunc("GET /api/{token}/{route}/{page}/{pageSize}", a.handleTokenList)
	a.mux.HandleFunc("GET /api/{token}/{route}/{id}", a.handleTokenGet)
	a.mux.HandleFunc("PUT /api/{token}/{route}/{id}", a.handleTokenUpdate)
	a.mux.HandleFunc("DELETE /api/{token}/{route}/{id}", a.handleTokenDelete)

	// user/IP-scoped documents
	a.mux.HandleFunc("POST /{route}", a.handleCreate)
	a.mux.HandleFunc("GET /{route}/{page}/{pageSize}", a.handleList)
	a.mux.HandleFunc("GET /{route}/{id}", a.handleGet)
	a.mux.HandleFunc("PUT /{route}/{id}", a.handleUpdate)
	a.mux.HandleFunc("DELETE /{route}/{id}", a.handleDelete)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "Not Found", "resource not found")
	})

	return a
}

// RateLimits overrides the per-IP limiter configuration.
func (a *API) RateLimits(burst, perSec int) {
	if burst > 0 {
		a.rateBurst = burst
	}
	if perSec > 0 {
		a.ratePerSec = perSec
	}
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withIdentity(h)
	h = MaxBodyBytes(h, maxRequestBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
