// Package metrics exposes /healthz and /metrics over HTTP: a
// plain-text liveness probe and a Prometheus scrape endpoint, nothing
// else — not an admin GUI or web portal. Uses echo for routing and
// github.com/prometheus/client_golang for the counters and exposition
// format rather than a hand-rolled one.
package metrics

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solanum-irc/solanum/ircd"
)

// Collectors holds the counters/gauges this core reports, named after
// the ServerStats fields they mirror.
type Collectors struct {
	Connections    prometheus.Gauge
	KlineHitsTotal prometheus.Gauge
	FloodDropsTotal prometheus.Gauge
	PropagatedBansTotal prometheus.Gauge
}

// NewCollectors registers a fresh set of collectors against reg. The
// *Total gauges mirror ircd.ServerStats's monotonic counters directly
// (exposed as gauges rather than prometheus.Counter since their value
// is sampled as an absolute snapshot — see Sample — not accumulated
// via Inc/Add at the scrape layer).
func NewCollectors(reg *prometheus.Registry) *Collectors {
	c := &Collectors{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solanum",
			Name:      "connections",
			Help:      "Currently connected clients and servers.",
		}),
		KlineHitsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solanum",
			Name:      "kline_hits_total",
			Help:      "Connections rejected by a K-line or D-line.",
		}),
		FloodDropsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solanum",
			Name:      "flood_drops_total",
			Help:      "Clients disconnected for excess flood.",
		}),
		PropagatedBansTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solanum",
			Name:      "propagated_bans_total",
			Help:      "Network BAN messages applied from peers.",
		}),
	}
	reg.MustRegister(c.Connections, c.KlineHitsTotal, c.FloodDropsTotal, c.PropagatedBansTotal)
	return c
}

// Sample copies the server's live counters into the collectors; called
// on each /metrics scrape rather than incrementally, since
// ircd.ServerStats is already the source of truth and a periodic
// sample avoids threading Prometheus calls through every call site
// that touches stats.
func (c *Collectors) Sample(stats *ircd.ServerStats) {
	snap := stats.Snapshot()
	c.Connections.Set(float64(snap.ConnectionCount))
	c.KlineHitsTotal.Set(float64(snap.KlineHits))
	c.FloodDropsTotal.Set(float64(snap.FloodDrops))
	c.PropagatedBansTotal.Set(float64(snap.PropagatedBans))
}

// Server is the standalone HTTP surface for health and metrics,
// separate from the IRC listener itself.
type Server struct {
	echo *echo.Echo
	stats *ircd.ServerStats
	coll  *Collectors
}

// New builds the metrics HTTP server, wiring a fresh prometheus
// registry and routes for /healthz and /metrics.
func New(stats *ircd.ServerStats) *Server {
	reg := prometheus.NewRegistry()
	coll := NewCollectors(reg)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, stats: stats, coll: coll}

	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	e.GET("/healthz", s.handleHealthz)
	e.GET("/metrics", func(c echo.Context) error {
		s.coll.Sample(s.stats)
		promHandler.ServeHTTP(c.Response(), c.Request())
		return nil
	})

	return s
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Handler exposes the underlying router as a plain http.Handler, for
// tests and for embedding behind another process's mux.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe blocks serving on addr until the process exits or the
// listener errors.
func (s *Server) ListenAndServe(addr string) error {
	return s.echo.Start(addr)
}

// Close shuts the HTTP server down.
func (s *Server) Close() error {
	return s.echo.Close()
}
