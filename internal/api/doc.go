// Package api serves the campusauth HTTP endpoints under /api/auth together
// with /healthz and /metrics.
//
// Every JSON response uses the envelope {success, data, message}. Token
// failures on any endpoint answer 401 with one fixed body.
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
