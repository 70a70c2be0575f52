package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

// NetworkHandler serves the static route screen data
type NetworkHandler struct {
	topology TopologyAggregator
	logger   arbor.ILogger
}

// NewNetworkHandler creates the handler
func NewNetworkHandler(topology TopologyAggregator, logger arbor.ILogger) *NetworkHandler {
	return &NetworkHandler{
		topology: topology,
		logger:   logger,
	}
}

// StaticRouteInitHandler handles GET /api/network/static-route/init
func (h *NetworkHandler) StaticRouteInitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	result, err := h.topology.Aggregate(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Static route topology failed")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"sites":          result.Sites,
		"remoteIpRanges": result.RemoteIPRanges,
	})
}
