// Package testorigin provides a deterministic HTTP origin server for
// end-to-end testing of the compiled scanhound binary, and a Docker-backed
// harness to run it in.
//
// The server side (this file) has no Docker dependency; it is what the
// in-container helper binary (internal/testorigin/cmd/testorigin-helper)
// runs.
package testorigin

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Route describes one fixed path's response.
type Route struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// RouteTable is the JSON spec an origin server is configured from: a fixed
// set of real paths, plus a default response served for everything else
// (the "soft 404" wildcard page scanhound's wildcard detector must learn to
// ignore).
type RouteTable struct {
	Routes  map[string]Route `json:"routes"`
	Default Route            `json:"default"`
}

// Handler builds an http.Handler that serves rt: an exact match on
// rt.Routes, or rt.Default for anything else.
func (rt RouteTable) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		route, ok := rt.Routes[path]
		if !ok {
			route = rt.Default
		}
		w.WriteHeader(route.Status)
		_, _ = w.Write([]byte(route.Body))
	})
}

// ServeFromReader decodes a RouteTable from r and blocks serving it on addr.
func ServeFromReader(r io.Reader, addr string) error {
	var rt RouteTable
	if err := json.NewDecoder(r).Decode(&rt); err != nil {
		return err
	}
	return http.ListenAndServe(addr, rt.Handler())
}
