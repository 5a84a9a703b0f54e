package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// StartMockServer runs a demo server on addr until it fails.
//
// Endpoints:
//   - /health?svc=..&env=..: 200, after a short random delay
//   - /flaky?fails=N: 503 for the first N requests per query, then 200
//   - /slow?ms=N: sleeps N milliseconds, then 200
func StartMockServer(addr string) {
	var (
		attempts = make(map[string]int)
		mu       sync.Mutex
	)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		fails, _ := strconv.Atoi(r.URL.Query().Get("fails"))

		mu.Lock()
		attempts[r.URL.RawQuery]++
		n := attempts[r.URL.RawQuery]
		mu.Unlock()

		if n <= fails {
			// hang up without a response so the probe records a failure
			// and retries
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		ms, _ := strconv.Atoi(r.URL.Query().Get("ms"))
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
