package observability

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	EnablePprof bool `yaml:"enablePprof"`
}

// Mount attaches the enabled debug endpoints to r. With pprof enabled the
// profiles are served under /debug/pprof/.
func Mount(r chi.Router, cfg Config) {
	if !cfg.EnablePprof {
		return
	}
	r.Mount("/debug", middleware.Profiler())
}
