package profiler

import (
	"net/http"
	"net/http/pprof"
)

// Register mounts the standard pprof handlers onto mux, so a single
// supervisory listener can serve /metrics, /healthz and /debug/pprof/ side
// by side instead of profiler.go opening its own port.
func Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
