// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server exposes the Prometheus registry on a port separate from the main
// API, optionally behind basic auth.
type Server struct {
	metrics        *Metrics
	host           string
	port           int
	basicAuthUsers map[string]string
}

// NewServer builds a metrics server. basicAuthUsers is a comma-separated
// list of user:password pairs; empty disables auth.
func NewServer(m *Metrics, host string, port int, basicAuthUsers string) *Server {
	return &Server{
		metrics:        m,
		host:           host,
		port:           port,
		basicAuthUsers: parseBasicAuthUsers(basicAuthUsers),
	}
}

func parseBasicAuthUsers(raw string) map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, password, ok := strings.Cut(pair, ":")
		if !ok {
			log.Warn().Str("entry", pair).Msg("metrics: ignoring malformed basic auth entry")
			continue
		}
		users[name] = password
	}
	return users
}

func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()

	handler := promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})
	if len(s.basicAuthUsers) > 0 {
		handler = s.basicAuth(handler)
	}
	mux.Handle("/metrics", handler)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("starting metrics server")

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return srv.ListenAndServe()
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if ok {
			if expected, exists := s.basicAuthUsers[user]; exists {
				if subtle.ConstantTimeCompare([]byte(password), []byte(expected)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}
