package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wallethub/ledgercore/internal/adapters/http/common"
	"github.com/wallethub/ledgercore/internal/simulation"
)

// SimulationHandler exposes the admin chaos-testing surface (spec §6,
// §4.5): getSimulationConfig, setSimulationConfig, resetSimulation.
type SimulationHandler struct{}

// NewSimulationHandler builds a SimulationHandler.
func NewSimulationHandler() *SimulationHandler {
	return &SimulationHandler{}
}

// SimulationConfigResponse is the wire shape of simulation.Config.
type SimulationConfigResponse struct {
	Enabled            bool     `json:"enabled"`
	FailureRate        float64  `json:"failureRate"`
	FailTransactionIDs []string `json:"failTransactionIds"`
	FailureType        string   `json:"failureType,omitempty"`
}

func toSimulationResponse(cfg simulation.Config) SimulationConfigResponse {
	ids := make([]string, 0, len(cfg.FailTransactionIDs))
	for id := range cfg.FailTransactionIDs {
		ids = append(ids, id)
	}
	return SimulationConfigResponse{
		Enabled:            cfg.Enabled,
		FailureRate:        cfg.FailureRate,
		FailTransactionIDs: ids,
		FailureType:        string(cfg.FailureType),
	}
}

// Get handles GET /v1/admin/simulation.
//
// @Summary Read the active failure-simulation configuration
// @Router /v1/admin/simulation [get]
func (h *SimulationHandler) Get(c *gin.Context) {
	common.Success(c, http.StatusOK, toSimulationResponse(simulation.Get()))
}

// SetSimulationConfigRequest is the body for setSimulationConfig.
type SetSimulationConfigRequest struct {
	Enabled            bool     `json:"enabled"`
	FailureRate        float64  `json:"failureRate"`
	FailTransactionIDs []string `json:"failTransactionIds"`
	FailureType        string   `json:"failureType"`
}

// Set handles PUT /v1/admin/simulation.
//
// @Summary Replace the active failure-simulation configuration
// @Router /v1/admin/simulation [put]
func (h *SimulationHandler) Set(c *gin.Context) {
	var req SetSimulationConfigRequest
	if !BindJSON(c, &req) {
		return
	}

	if req.FailureRate < 0 || req.FailureRate > 1 {
		common.BadRequestResponse(c, "failureRate must be between 0 and 1")
		return
	}

	ids := make(map[string]struct{}, len(req.FailTransactionIDs))
	for _, id := range req.FailTransactionIDs {
		ids[id] = struct{}{}
	}

	simulation.Set(simulation.Config{
		Enabled:            req.Enabled,
		FailureRate:        req.FailureRate,
		FailTransactionIDs: ids,
		FailureType:        simulation.FailureType(req.FailureType),
	})

	common.Success(c, http.StatusOK, toSimulationResponse(simulation.Get()))
}

// Reset handles POST /v1/admin/simulation/reset.
//
// @Summary Disable failure simulation entirely
// @Router /v1/admin/simulation/reset [post]
func (h *SimulationHandler) Reset(c *gin.Context) {
	simulation.Reset()
	common.Success(c, http.StatusOK, toSimulationResponse(simulation.Get()))
}

// RegisterRoutes wires the simulation admin endpoints onto router.
func (h *SimulationHandler) RegisterRoutes(router gin.IRouter) {
	admin := router.Group("/admin/simulation")
	admin.GET("", h.Get)
	admin.PUT("", h.Set)
	admin.POST("/reset", h.Reset)
}
