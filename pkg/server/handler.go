package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikeboe/deep-search/pkg/database"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type Handler struct {
	Service *Service
	MCP     *mcp.Server
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s, MCP: NewMCPServer(s)}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.healthz)
	r.Any("/mcp", gin.WrapH(mcpHandler(h.MCP)))
	api := r.Group("/api")
	{
		api.POST("/search", h.search)
		api.GET("/runs/:id/logs", h.getRunLogs)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query    string             `json:"query"`
	Messages []research.Message `json:"messages"`
	Location *research.Location `json:"location,omitempty"`
}

func (r SearchRequest) toResearch(c *gin.Context) (research.Request, error) {
	req := research.Request{Query: r.Query, History: r.Messages, Location: r.Location}
	if strings.TrimSpace(req.Query) == "" && strings.TrimSpace(research.LatestUserMessage(req.History)) == "" {
		return req, errors.New("query or a user message is required")
	}
	if req.Location == nil || req.Location.IsZero() {
		if loc := locationFromHeaders(c.Request.Header); !loc.IsZero() {
			req.Location = &loc
		}
	}
	return req, nil
}

func locationFromHeaders(h http.Header) research.Location {
	return research.Location{
		City:      h.Get("X-Vercel-IP-City"),
		Country:   h.Get("X-Vercel-IP-Country"),
		Latitude:  h.Get("X-Vercel-IP-Latitude"),
		Longitude: h.Get("X-Vercel-IP-Longitude"),
	}
}

// search streams progress, answer chunks and a final done or error event as SSE.
// An error event with discardText set invalidates the text events before it.
func (h *Handler) search(c *gin.Context) {
	var body SearchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := body.toResearch(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.New()
	c.Header("X-Run-Id", runID.String())
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	var mu sync.Mutex
	var streamedText bool
	emit := func(ev StreamEvent) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Type == EventText {
			streamedText = true
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		_, _ = c.Writer.Write([]byte("data: "))
		_, _ = c.Writer.Write(data)
		_, _ = c.Writer.Write([]byte("\n\n"))
		c.Writer.Flush()
	}

	result, err := h.Service.Search(c.Request.Context(), runID, req, emit)
	if err != nil {
		// Text already sent belongs to an unfinished answer and must be dropped by the client.
		mu.Lock()
		discard := streamedText
		mu.Unlock()
		emit(StreamEvent{Type: EventError, Payload: gin.H{
			"runId":       runID,
			"message":     err.Error(),
			"deadline":    errors.Is(err, research.ErrDeadlineExceeded),
			"discardText": discard,
		}})
		return
	}
	emit(StreamEvent{Type: EventDone, Payload: gin.H{"runId": result.RunID, "mode": result.Mode}})
}

func (h *Handler) getRunLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Service.RunLogs(c.Request.Context(), id)
	if errors.Is(err, ErrLogsUnavailable) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []database.LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
