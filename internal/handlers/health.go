package handlers

import (
	"net/http"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Driver  string `json:"driver"`
	Clients int    `json:"clients"`
}

// HealthHandler reports liveness along with the active store driver.
type HealthHandler struct {
	driver      string
	clientCount func() int
}

// NewHealthHandler creates a HealthHandler. clientCount reports open relay connections.
func NewHealthHandler(driver string, clientCount func() int) *HealthHandler {
	return &HealthHandler{driver: driver, clientCount: clientCount}
}

// HealthCheck handles GET /health
// Returns the server's health status for monitoring and load balancer checks.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Message: "Parley relay is running",
		Driver:  h.driver,
		Clients: h.clientCount(),
	})
}
