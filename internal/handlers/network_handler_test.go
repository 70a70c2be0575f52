package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/services/session"
	"github.com/ternarybob/cmabridge/internal/services/topology"
)

type mockAggregator struct {
	AggregateFunc func(ctx context.Context) (*models.TopologyResult, error)
}

func (m *mockAggregator) Aggregate(ctx context.Context) (*models.TopologyResult, error) {
	return m.AggregateFunc(ctx)
}

func TestStaticRouteInitHandler(t *testing.T) {
	vlan := 20
	h := NewNetworkHandler(&mockAggregator{AggregateFunc: func(ctx context.Context) (*models.TopologyResult, error) {
		return &models.TopologyResult{
			Sites: []models.Site{{ID: "1", Name: "HQ", Networks: []models.NetworkEntry{{InterfaceName: "LAN 01", CIDR: "10.0.0.0/24", VLAN: &vlan}}}},
			RemoteIPRanges: models.RemoteIPRanges{Default: "10.41.0.0/16"},
		}, nil
	}}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.StaticRouteInitHandler(rec, httptest.NewRequest(http.MethodGet, "/api/network/static-route/init", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	assert.Equal(t, "ok", body["status"])
	sites := body["sites"].([]interface{})
	require.Len(t, sites, 1)
	network := sites[0].(map[string]interface{})["networks"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "10.0.0.0/24", network["cidr"])
	assert.Equal(t, float64(20), network["vlan"])
	assert.Equal(t, "10.41.0.0/16", body["remoteIpRanges"].(map[string]interface{})["default"])
}

func TestStaticRouteInitHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no session", session.ErrSessionMissing, http.StatusUnauthorized},
		{"fatal step", &topology.StepError{Step: topology.StepIdentity, Err: errors.New("HTTP 401")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewNetworkHandler(&mockAggregator{AggregateFunc: func(ctx context.Context) (*models.TopologyResult, error) {
				return nil, tt.err
			}}, arbor.NewLogger())

			rec := httptest.NewRecorder()
			h.StaticRouteInitHandler(rec, httptest.NewRequest(http.MethodGet, "/api/network/static-route/init", nil))
			assert.Equal(t, tt.want, rec.Code)
			body := decodeResponse(t, rec)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}
