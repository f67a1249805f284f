package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"centros-monitor/internal/engine"
	"centros-monitor/internal/netio"
)

// viewResponse is the merged dashboard state: the engine snapshot plus the
// outlet rows and rendered retake labels.
type viewResponse struct {
	engine.Snapshot
	RetakeText map[int64]string         `json:"retake_text,omitempty"`
	Netio      map[int64]netio.RowState `json:"netio,omitempty"`
}

// GetView returns the current merged view.
func (h *Handler) GetView(c *gin.Context) {
	snap := h.eng.Snapshot()
	resp := viewResponse{Snapshot: snap}
	if len(snap.Retakes) > 0 {
		resp.RetakeText = make(map[int64]string, len(snap.Retakes))
		for id, st := range snap.Retakes {
			resp.RetakeText[id] = engine.RetakeStatusText(st)
		}
	}
	if h.relay != nil {
		resp.Netio = h.relay.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

type selectionRequest struct {
	ClienteID int64  `json:"cliente_id" binding:"required"`
	Fecha     string `json:"fecha"`
}

// PostSelection switches the active client and report date.
func (h *Handler) PostSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.eng.SetActiveSelection(req.ClienteID, req.Fecha)
	c.Status(http.StatusAccepted)
}

type pageRequest struct {
	Page int `json:"page" binding:"required"`
}

// PostPage moves the page window.
func (h *Handler) PostPage(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.eng.SetPage(req.Page)
	c.Status(http.StatusAccepted)
}

type pageSizeRequest struct {
	PageSize int `json:"page_size" binding:"required"`
}

// PostPageSize changes the page size and persists it as the default.
func (h *Handler) PostPageSize(c *gin.Context) {
	var req pageSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PageSize < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be a positive integer"})
		return
	}
	h.eng.SetPageSize(req.PageSize)
	if h.store != nil {
		_ = h.store.SetPreference(c.Request.Context(), "page_size", strconv.Itoa(req.PageSize))
	}
	c.Status(http.StatusAccepted)
}

// PostRefresh forces a reload of both poll streams.
func (h *Handler) PostRefresh(c *gin.Context) {
	h.eng.ForceRefresh()
	c.Status(http.StatusAccepted)
}

// PostRetake starts the recapture state machine for one centro.
func (h *Handler) PostRetake(c *gin.Context) {
	centroID, err := strconv.ParseInt(c.Param("centro_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid centro id"})
		return
	}
	switch err := h.eng.Retake(centroID); {
	case err == nil:
		c.Status(http.StatusAccepted)
	case errors.Is(err, engine.ErrRetakeBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrUnknownCentro):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetNetio returns the outlet state for every tracked centro.
func (h *Handler) GetNetio(c *gin.Context) {
	c.JSON(http.StatusOK, h.relay.Snapshot())
}

type toggleRequest struct {
	On *bool `json:"on" binding:"required"`
}

// PostNetioToggle switches one outlet on or off.
func (h *Handler) PostNetioToggle(c *gin.Context) {
	centroID, outlet, ok := h.netioParams(c)
	if !ok {
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.netioCommand(c, h.relay.Toggle(centroID, outlet, *req.On))
}

// PostNetioRestart power-cycles one outlet.
func (h *Handler) PostNetioRestart(c *gin.Context) {
	centroID, outlet, ok := h.netioParams(c)
	if !ok {
		return
	}
	h.netioCommand(c, h.relay.Restart(centroID, outlet))
}

func (h *Handler) netioParams(c *gin.Context) (int64, int, bool) {
	centroID, err := strconv.ParseInt(c.Param("centro_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid centro id"})
		return 0, 0, false
	}
	outlet, err := strconv.Atoi(c.Param("outlet"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outlet"})
		return 0, 0, false
	}
	return centroID, outlet, true
}

func (h *Handler) netioCommand(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.Status(http.StatusAccepted)
	case errors.Is(err, netio.ErrCommandBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, netio.ErrUntracked):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, netio.ErrRelayUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
