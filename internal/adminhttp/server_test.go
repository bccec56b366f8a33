package adminhttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensormesh/fabric/pkg/reading"
	"github.com/sensormesh/fabric/pkg/series"
)

func TestHealthzReturnsOK(t *testing.T) {
	r := NewRouter(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBusStatsReportsNotFoundWhenUnwired(t *testing.T) {
	r := NewRouter(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/bus/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	r := NewRouter(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSeriesReadReportsNotFoundWhenUnwired(t *testing.T) {
	r := NewRouter(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/series/read?kind=9", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSeriesReadRejectsMissingKind(t *testing.T) {
	st := series.Open(t.TempDir())
	defer st.Close()

	r := NewRouter(Deps{Series: st})
	req := httptest.NewRequest(http.MethodGet, "/api/series/read", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActuateReportsNotFoundWhenUnwired(t *testing.T) {
	r := NewRouter(Deps{})
	req := httptest.NewRequest(http.MethodPost, "/api/affectors/actuate", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActuateSendsDecodedAffector(t *testing.T) {
	var got reading.Affector
	r := NewRouter(Deps{Actuate: func(a reading.Affector) error {
		got = a
		return nil
	}})

	body, err := json.Marshal(reading.Affector{Kind: reading.AffectorCalibrateCO2, Target: reading.DeviceMhz14, Param: 420})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/affectors/actuate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, reading.AffectorCalibrateCO2, got.Kind)
	require.Equal(t, reading.DeviceMhz14, got.Target)
	require.Equal(t, float32(420), got.Param)
}

func TestActuateReportsBadGatewayOnSendFailure(t *testing.T) {
	r := NewRouter(Deps{Actuate: func(a reading.Affector) error {
		return errors.New("not connected")
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/affectors/actuate", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
