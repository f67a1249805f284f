package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"centros-monitor/internal/gateway"
	"centros-monitor/internal/parse"
)

// GetClientes proxies the client list.
func (h *Handler) GetClientes(c *gin.Context) {
	clientes, err := h.gw.ListClientes(c.Request.Context())
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, clientes)
}

type createClienteRequest struct {
	Nombre string `json:"nombre" binding:"required"`
}

// PostCliente creates a client upstream.
func (h *Handler) PostCliente(c *gin.Context) {
	var req createClienteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cliente, err := h.gw.CreateCliente(c.Request.Context(), req.Nombre)
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cliente)
}

// DeleteCliente removes a client upstream.
func (h *Handler) DeleteCliente(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("cliente_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cliente id"})
		return
	}
	if err := h.gw.DeleteCliente(c.Request.Context(), id); err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// PostCentro creates a centro upstream. A missing uuid_equipo is derived from
// the name the same way the backend does, so the row is addressable by the
// relay controller right away.
func (h *Handler) PostCentro(c *gin.Context) {
	var req gateway.CentroCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ClienteID == 0 || req.Nombre == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cliente_id and nombre are required"})
		return
	}
	if req.UUIDEquipo == "" {
		req.UUIDEquipo = parse.Slugify(req.Nombre)
	}
	centro, err := h.gw.CreateCentro(c.Request.Context(), &req)
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, centro)
}

// DeleteCentro removes a centro upstream.
func (h *Handler) DeleteCentro(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("centro_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid centro id"})
		return
	}
	if err := h.gw.DeleteCentro(c.Request.Context(), id); err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// PatchCaptura updates capture metadata upstream and wakes the engine so the
// edit shows up without waiting for the next poll.
func (h *Handler) PatchCaptura(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("captura_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid captura id"})
		return
	}
	var req gateway.CapturaUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.gw.PatchCaptura(c.Request.Context(), id, &req); err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	h.eng.Wake()
	c.Status(http.StatusNoContent)
}

// GetUsers proxies the user list.
func (h *Handler) GetUsers(c *gin.Context) {
	users, err := h.gw.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, users)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PostLogin proxies an authentication attempt.
func (h *Handler) PostLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.gw.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetReportePDF streams the daily report for a client.
func (h *Handler) GetReportePDF(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("cliente_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cliente id"})
		return
	}
	fecha := c.Query("fecha")
	pdf, err := h.gw.ReportePDF(c.Request.Context(), id, fecha)
	if err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// GetEventos returns the recent online/offline transition journal.
func (h *Handler) GetEventos(c *gin.Context) {
	clienteID, _ := strconv.ParseInt(c.Query("cliente_id"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.store.RecentTransitions(c.Request.Context(), clienteID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}
