// Package adminhttp exposes an operator-facing HTTP surface for the
// fabric's two binaries: health, Prometheus metrics, bus/affector/series
// status, and a window onto recently recorded device errors. There is
// deliberately no login or session handling here -- this surface is meant
// to sit behind an operator's own network boundary, not be internet-facing.
package adminhttp

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sensormesh/fabric/internal/affector"
	"github.com/sensormesh/fabric/internal/bus"
	"github.com/sensormesh/fabric/internal/logstore"
	"github.com/sensormesh/fabric/pkg/log"
	"github.com/sensormesh/fabric/pkg/lrucache"
	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/series"
)

// seriesReadCacheMemory and seriesReadCacheTTL bound the HTTP-level cache
// sitting in front of /api/series/read: dashboards tend to re-issue the
// same window/resolution query far more often than the underlying series
// actually changes.
const (
	seriesReadCacheMemory = 32 << 20
	seriesReadCacheTTL    = 5 * time.Second
)

// Deps bundles everything the admin surface reports on. Any field may be
// nil; handlers answer 404 ("... not wired into this process") for a nil
// dependency rather than panicking, since data-server and data-store each only wire a
// subset of these.
type Deps struct {
	Bus        *bus.Bus
	Affectors  *affector.Registry
	Series     *series.Store
	Logs       *logstore.Store
	Histograms *logstore.HistogramStore
	Metrics    *Metrics

	// Actuate, if non-nil, enables POST /api/affectors/actuate: it should
	// send a KindAffectorOrder on the process's subscribe-port connection
	// to the data-server and return any error hit while sending. Only
	// data-store wires this; data-server has no upstream connection to
	// order an actuation on.
	Actuate func(reading.Affector) error
}

// NewRouter builds the admin mux.Router. Callers wrap it in an http.Server
// themselves, keeping router construction separate from listener startup.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/bus/stats", handleBusStats(deps.Bus)).Methods(http.MethodGet)
	r.HandleFunc("/api/affectors", handleAffectors(deps.Affectors)).Methods(http.MethodGet)
	r.HandleFunc("/api/affectors/actuate", handleActuate(deps.Actuate)).Methods(http.MethodPost)
	r.HandleFunc("/api/series/devices", handleSeriesDevices(deps.Series)).Methods(http.MethodGet)
	r.Handle("/api/series/read",
		lrucache.NewHttpHandler(seriesReadCacheMemory, seriesReadCacheTTL, handleSeriesRead(deps.Series)),
	).Methods(http.MethodGet)
	r.HandleFunc("/api/errors", handleRecentErrors(deps.Logs)).Methods(http.MethodGet)
	r.HandleFunc("/api/histograms", handleHistogram(deps.Histograms)).Methods(http.MethodGet)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	return r
}

// LoggingHandler wraps h with a gorilla/handlers access log at debug level.
func LoggingHandler(h http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, h, func(w io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %dms)",
			params.Request.Method, params.URL.RequestURI(), params.StatusCode,
			time.Since(params.TimeStamp).Milliseconds())
	})
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Errorf("adminhttp: encode response: %v", err)
	}
}

func handleHealthz(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("ok"))
}

func handleBusStats(b *bus.Bus) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if b == nil {
			http.Error(rw, "bus not wired into this process", http.StatusNotFound)
			return
		}
		writeJSON(rw, b.Stats())
	}
}

func handleAffectors(reg *affector.Registry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if reg == nil {
			http.Error(rw, "affector registry not wired into this process", http.StatusNotFound)
			return
		}
		writeJSON(rw, reg.List())
	}
}

// handleActuate originates an Actuate request: it decodes a JSON-encoded
// reading.Affector from the request body and hands it to actuate, which
// sends a KindAffectorOrder upstream. The outcome arrives later, out of
// band, as a KindAffectorControlled recorded by the subscriber's normal
// message handling -- this endpoint only reports whether the order was sent.
func handleActuate(actuate func(reading.Affector) error) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if actuate == nil {
			http.Error(rw, "actuate not wired into this process", http.StatusNotFound)
			return
		}

		var a reading.Affector
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			http.Error(rw, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		if err := actuate(a); err != nil {
			http.Error(rw, err.Error(), http.StatusBadGateway)
			return
		}
		rw.WriteHeader(http.StatusAccepted)
	}
}

func handleSeriesDevices(st *series.Store) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if st == nil {
			http.Error(rw, "series store not wired into this process", http.StatusNotFound)
			return
		}
		writeJSON(rw, map[string]int{"open_devices": st.OpenDeviceCount()})
	}
}

// handleSeriesRead serves pkg/series.Store.Read over HTTP: ?kind=<id> may
// repeat to request several same-device kinds at once, plus ?start=,
// ?end= (unix milliseconds) and ?n= (target point count).
func handleSeriesRead(st *series.Store) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if st == nil {
			http.Error(rw, "series store not wired into this process", http.StatusNotFound)
			return
		}

		rawKinds := r.URL.Query()["kind"]
		if len(rawKinds) == 0 {
			http.Error(rw, "at least one ?kind= is required", http.StatusBadRequest)
			return
		}
		kinds := make([]reading.Kind, 0, len(rawKinds))
		for _, raw := range rawKinds {
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || !reading.Kind(n).Valid() {
				http.Error(rw, "invalid ?kind= value: "+raw, http.StatusBadRequest)
				return
			}
			kinds = append(kinds, reading.Kind(n))
		}

		start, err := parseMillis(r.URL.Query().Get("start"))
		if err != nil {
			http.Error(rw, "invalid ?start=", http.StatusBadRequest)
			return
		}
		end, err := parseMillis(r.URL.Query().Get("end"))
		if err != nil {
			http.Error(rw, "invalid ?end=", http.StatusBadRequest)
			return
		}

		n := 256
		if raw := r.URL.Query().Get("n"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				n = parsed
			}
		}

		points, err := st.Read(kinds, start, end, n)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(rw, points)
	}
}

func parseMillis(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func handleRecentErrors(st *logstore.Store) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if st == nil {
			http.Error(rw, "log store not wired into this process", http.StatusNotFound)
			return
		}

		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		device := reading.DeviceID(255) // invalid sentinel -> "every device"
		if raw := r.URL.Query().Get("device"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				device = reading.DeviceID(n)
			}
		}

		rows, err := st.RecentErrors(device, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, rows)
	}
}

// densityWindows are the lookback windows reported by default alongside a
// kind's percentiles.
var densityWindows = []time.Duration{time.Minute, 5 * time.Minute, time.Hour}

type histogramResponse struct {
	Kind          reading.Kind       `json:"kind"`
	P50Millis     int64              `json:"p50_millis"`
	P90Millis     int64              `json:"p90_millis"`
	P99Millis     int64              `json:"p99_millis"`
	DensityPerMin map[string]float64 `json:"density_per_minute"`
}

// handleHistogram serves a reading kind's inter-arrival percentiles() and
// density(buckets), per ?kind=<id>.
func handleHistogram(hists *logstore.HistogramStore) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if hists == nil {
			http.Error(rw, "histogram store not wired into this process", http.StatusNotFound)
			return
		}

		raw := r.URL.Query().Get("kind")
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || !reading.Kind(n).Valid() {
			http.Error(rw, "invalid or missing ?kind=", http.StatusBadRequest)
			return
		}
		k := reading.Kind(n)

		density := hists.Density(k, densityWindows)
		perMin := make(map[string]float64, len(densityWindows))
		for i, w := range densityWindows {
			perMin[w.String()] = density[i]
		}

		writeJSON(rw, histogramResponse{
			Kind:          k,
			P50Millis:     hists.Percentile(k, 50).Milliseconds(),
			P90Millis:     hists.Percentile(k, 90).Milliseconds(),
			P99Millis:     hists.Percentile(k, 99).Milliseconds(),
			DensityPerMin: perMin,
		})
	}
}
