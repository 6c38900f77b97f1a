// Package profiling starts the optional pprof endpoint and Pyroscope
// continuous profiling.
package profiling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/grafana/pyroscope-go"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
)

const (
	defaultPprofAddr    = "localhost:6060"
	defaultPyroscopeURL = "http://pyroscope:4040"
	defaultEnvironment  = "development"
	shutdownTimeout     = 5 * time.Second
	readHeaderTimeout   = 10 * time.Second
)

// Config enables the profilers. Both are off by default.
type Config struct {
	Pprof bool `env:"ENABLE_PROFILING" yaml:"pprof"`
	// PprofAddr should stay on loopback; the endpoints are unauthenticated.
	PprofAddr   string `env:"PPROF_ADDR"                  yaml:"pprof_addr"`
	Pyroscope   bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"pyroscope"`
	ServerURL   string `env:"PYROSCOPE_SERVER_URL"        yaml:"server_url"`
	Environment string `env:"PYROSCOPE_ENVIRONMENT"       yaml:"environment"`
}

// SetDefaults applies default values for Config.
func (c *Config) SetDefaults() {
	if c.PprofAddr == "" {
		c.PprofAddr = defaultPprofAddr
	}
	if c.ServerURL == "" {
		c.ServerURL = defaultPyroscopeURL
	}
	if c.Environment == "" {
		c.Environment = defaultEnvironment
	}
}

// Start starts the enabled profilers. The returned stop function is never nil.
func Start(cfg Config, service, version string, log logger.Logger) (func(), error) {
	cfg.SetDefaults()
	var stops []func()
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if cfg.Pprof {
		srv := newPprofServer(cfg.PprofAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("pprof server stopped", logger.Error(err))
			}
		}()
		log.Info("pprof server started", logger.String("address", cfg.PprofAddr))
		stops = append(stops, func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}

	if cfg.Pyroscope {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "north-cloud." + service,
			ServerAddress:   cfg.ServerURL,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
			},
			Tags: map[string]string{
				"environment": cfg.Environment,
				"version":     version,
				"hostname":    hostname(),
				"go_version":  runtime.Version(),
			},
		})
		if err != nil {
			stop()
			return func() {}, fmt.Errorf("start pyroscope profiler: %w", err)
		}
		log.Info("Pyroscope continuous profiling started",
			logger.String("server", cfg.ServerURL),
			logger.String("environment", cfg.Environment))
		stops = append(stops, func() {
			if err := profiler.Stop(); err != nil {
				log.Warn("Failed to stop Pyroscope profiler", logger.Error(err))
			}
		})
	}

	return stop, nil
}

func newPprofServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
