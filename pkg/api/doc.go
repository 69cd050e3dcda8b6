// Package api wires the unit host together and exposes it over HTTP.
//
// This package is a thin layer over pkg/server: it builds the registry,
// dispatcher and lifecycle manager from configuration, reconciles the
// managed root, and mounts the management routes. Requests that match no
// management route fall through to the dispatcher, which forwards
// /{name}/... to the registered unit or renders a JSON 404.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := api.Serve(ctx, cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # Endpoints
//
// Management (rate limited):
//   - POST   /api/units/install     {"sourceUrl": "..."} (alias "githubUrl") -> {"name": "..."}
//   - GET    /api/units             -> {"units": [...]}
//   - PUT    /api/units/{name}      update -> {"success": true, "metadata": {...}}
//   - DELETE /api/units/{name}      uninstall -> {"success": true}
//   - GET    /api/units/{name}/env  -> {"env": {...}}
//   - POST   /api/units/{name}/env  {"env": {...}} -> {"success": true}
//
// Dispatch:
//   - GET|POST /{name}/...  forwarded to the unit's ServeGet or ServePost
//
// System (no rate limiting):
//   - GET /health, GET /ready, GET /metrics
//
// Lifecycle calls run detached from the request context, so a client that
// disconnects mid-install does not abort the cutover. With restart enabled
// (the default) every successful mutation ends the process after the
// response is written and the supervisor starts a fresh one.
//
// Example:
//
//	curl -s -X POST localhost:8080/api/units/install \
//	  -d '{"sourceUrl": "https://github.com/acme/sample-unit.git"}'
package api
