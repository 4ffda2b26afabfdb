package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hass-uconnect/hass-uconnect/internal/api/uconnect"
	"github.com/hass-uconnect/hass-uconnect/internal/metrics"
	"github.com/hass-uconnect/hass-uconnect/internal/models"
	"github.com/hass-uconnect/hass-uconnect/internal/repository"
	"github.com/hass-uconnect/hass-uconnect/internal/service"
	"github.com/hass-uconnect/hass-uconnect/pkg/ws"
)

// Handler wires the HTTP surface over the vehicle service.
type Handler struct {
	logger         *zap.Logger
	vehicleService *service.VehicleService
	commandRepo    *repository.CommandRepository
	metrics        *metrics.Metrics
	wsHub          *ws.Hub
	upgrader       websocket.Upgrader

	// allCommands lists every known command per vehicle regardless of the
	// upstream capability flags.
	allCommands bool
}

// NewHandler creates the HTTP handler. commandRepo may be nil when running
// without persistence.
func NewHandler(
	logger *zap.Logger,
	vehicleService *service.VehicleService,
	commandRepo *repository.CommandRepository,
	m *metrics.Metrics,
	wsHub *ws.Hub,
	allCommands bool,
) *Handler {
	return &Handler{
		logger:         logger,
		vehicleService: vehicleService,
		commandRepo:    commandRepo,
		metrics:        m,
		wsHub:          wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		allCommands: allCommands,
	}
}

// RegisterRoutes mounts the API.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:vin", h.GetVehicle)
		api.GET("/vehicles/:vin/state", h.GetVehicleState)
		api.POST("/vehicles/:vin/refresh", h.RefreshVehicle)
		api.GET("/vehicles/:vin/commands", h.ListCommands)
		api.POST("/vehicles/:vin/commands/:name", h.RunCommand)
		api.GET("/vehicles/:vin/commands/log", h.CommandLog)

		api.POST("/auth/reauthenticate", h.Reauthenticate)
		api.GET("/auth/session", h.SessionState)
	}

	r.GET("/ws", h.HandleWebSocket)
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
}

// ListVehicles returns the account catalog.
func (h *Handler) ListVehicles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.vehicleService.Vehicles()})
}

// GetVehicle returns one catalog entry.
func (h *Handler) GetVehicle(c *gin.Context) {
	vin := c.Param("vin")
	vehicle, ok := h.vehicleService.Vehicle(vin)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

// GetVehicleState returns the latest known state for a vehicle.
func (h *Handler) GetVehicleState(c *gin.Context) {
	vin := c.Param("vin")
	state, err := h.vehicleService.GetState(c.Request.Context(), vin)
	if err != nil && state == nil {
		h.writeError(c, vin, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": state})
}

// RefreshVehicle forces a poll. Depth comes from the JSON body or the depth
// query parameter; "deep" adds the EV and location endpoints. On failure with
// a cached state available, the stale state is returned with a 200 and a
// stale marker.
func (h *Handler) RefreshVehicle(c *gin.Context) {
	vin := c.Param("vin")

	var body struct {
		Depth string `json:"depth"`
	}
	_ = c.ShouldBindJSON(&body)

	depth := uconnect.DepthShallow
	if body.Depth == "deep" || c.Query("depth") == "deep" {
		depth = uconnect.DepthDeep
	}

	state, err := h.vehicleService.Refresh(c.Request.Context(), vin, depth)
	if err != nil {
		if state != nil {
			c.JSON(http.StatusOK, gin.H{"data": state, "stale": true, "error": err.Error()})
			return
		}
		h.writeError(c, vin, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": state})
}

// ListCommands returns the commands available for a vehicle.
func (h *Handler) ListCommands(c *gin.Context) {
	vin := c.Param("vin")
	vehicle, ok := h.vehicleService.Vehicle(vin)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}

	var available []models.Command
	for _, cmd := range models.Commands {
		if h.allCommands || vehicle.Supports(cmd) {
			available = append(available, cmd)
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": available})
}

// RunCommand dispatches a named remote command.
func (h *Handler) RunCommand(c *gin.Context) {
	vin := c.Param("vin")
	name := c.Param("name")

	req, err := h.vehicleService.RunCommand(c.Request.Context(), vin, name)
	if err != nil {
		h.writeError(c, vin, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": req})
}

// CommandLog returns the newest dispatch records for a vehicle.
func (h *Handler) CommandLog(c *gin.Context) {
	if h.commandRepo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Persistence disabled"})
		return
	}
	vin := c.Param("vin")
	log, err := h.commandRepo.ListByVIN(c.Request.Context(), vin, 50)
	if err != nil {
		h.logger.Error("Failed to list command log", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list command log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": log})
}

// Reauthenticate performs a fresh login with new credentials and resumes
// polling.
func (h *Handler) Reauthenticate(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		PIN      string `json:"pin"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	creds := uconnect.Credentials{Username: req.Username, Password: req.Password, PIN: req.PIN}
	if err := h.vehicleService.Reauthenticate(c.Request.Context(), creds); err != nil {
		h.logger.Warn("Reauthentication failed", zap.Error(err))
		h.writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SessionState reports the auth state machine's current state.
func (h *Handler) SessionState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.vehicleService.SessionState()})
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck reports liveness plus session and hub state.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"session":    h.vehicleService.SessionState(),
		"ws_clients": h.wsHub.ClientCount(),
	})
}

// writeError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, vin string, err error) {
	var ce *uconnect.CommandError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case uconnect.CommandUnsupported:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case uconnect.CommandUnauthorized:
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	var ae *uconnect.APIError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case uconnect.APINotSupported:
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		case uconnect.APIUnauthorized:
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	if uconnect.IsReauthRequired(err) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var authErr *uconnect.AuthError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	h.logger.Error("Request failed", zap.String("vin", vin), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
