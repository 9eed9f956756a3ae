package console

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/broadcast"
	"agentconsole/internal/observability"
	"agentconsole/internal/simulator"
)

const maxSettingsBody = 64 << 10

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	LiveRuns    int    `json:"liveRuns"`
	ChannelPeer int    `json:"channelPeers"`
}

func (s *Server) handleHealth(c *gin.Context) {
	writeOK(c, healthResponse{
		Status:      "ok",
		Version:     s.version,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		LiveRuns:    s.store.LiveCount(),
		ChannelPeer: s.hub.PeerCount(),
	})
}

type contextResponse struct {
	Operator    string       `json:"operator"`
	Environment string       `json:"environment"`
	Permissions []Permission `json:"permissions"`
}

func (s *Server) handleContext(c *gin.Context) {
	writeOK(c, contextResponse{
		Operator:    s.console.Operator,
		Environment: s.console.Environment,
		Permissions: s.console.Permissions(),
	})
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req agentrun.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	run, err := s.sim.Start(s.runCtx, req.Task)
	if errors.Is(err, simulator.ErrEmptyTask) {
		writeError(c, http.StatusBadRequest, "Task description is required")
		return
	}
	if err != nil {
		s.logger.Error("Start run failed: %v", err)
		writeError(c, http.StatusInternalServerError, "Failed to start run")
		return
	}
	s.publish(broadcast.KeyTasksChanged)
	writeOK(c, agentrun.SubmitResponse{TaskID: run.ID()})
}

func (s *Server) handleRunStatus(c *gin.Context) {
	snap, err := s.store.Snapshot(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusNotFound, "Agent run not found")
		return
	}
	writeOK(c, snap)
}

// handleRunStop is idempotent: stopping a finished run succeeds.
func (s *Server) handleRunStop(c *gin.Context) {
	id := c.Param("id")
	if run, ok := s.store.Live(id); ok {
		s.lifecycleSpan(c, "stop")
		run.Stop()
		writeMessage(c, "Stop signal sent")
		return
	}
	if _, err := s.store.Snapshot(id); err != nil {
		writeError(c, http.StatusNotFound, "Agent run not found")
		return
	}
	writeMessage(c, "Run already finished")
}

func (s *Server) handleRunPause(c *gin.Context) {
	s.handleRunTransition(c, "pause", (*simulator.Run).Pause, "Run paused")
}

func (s *Server) handleRunResume(c *gin.Context) {
	s.handleRunTransition(c, "resume", (*simulator.Run).Resume, "Run resumed")
}

func (s *Server) handleRunTransition(c *gin.Context, action string, apply func(*simulator.Run) error, done string) {
	id := c.Param("id")
	run, ok := s.store.Live(id)
	if !ok {
		if _, err := s.store.Snapshot(id); err != nil {
			writeError(c, http.StatusNotFound, "Agent run not found")
			return
		}
		writeError(c, http.StatusConflict, "Run already finished")
		return
	}
	s.lifecycleSpan(c, action)
	if err := apply(run); err != nil {
		writeError(c, http.StatusConflict, capitalizeFirst(err.Error()))
		return
	}
	writeMessage(c, done)
}

func (s *Server) lifecycleSpan(c *gin.Context, action string) {
	if s.obs == nil {
		return
	}
	_, span := s.obs.Tracer.StartSpan(c.Request.Context(), observability.SpanRunLifecycle,
		observability.TaskAttrs(c.Param("id"))...)
	span.SetAttributes(observability.StatusAttrs(action)...)
	span.End()
}

func (s *Server) handleTasks(c *gin.Context) {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "pageSize", defaultPageSize)
	writeOK(c, s.store.Tasks(page, pageSize))
}

func (s *Server) handleTask(c *gin.Context) {
	record, err := s.store.Task(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusNotFound, "Task not found")
		return
	}
	writeOK(c, record)
}

func (s *Server) handleTaskStop(c *gin.Context) {
	switch err := s.store.StopTask(c.Param("id")); {
	case errors.Is(err, ErrNotFound):
		writeError(c, http.StatusNotFound, "Task not found")
	case errors.Is(err, ErrTaskNotRunning):
		writeError(c, http.StatusBadRequest, "Task is not running")
	case err != nil:
		writeError(c, http.StatusInternalServerError, err.Error())
	default:
		s.publish(broadcast.KeyTasksChanged)
		writeMessage(c, "Task stopped successfully")
	}
}

func (s *Server) handleStatistics(c *gin.Context) {
	writeOK(c, s.store.Statistics())
}

func (s *Server) handleTokenTrend(c *gin.Context) {
	writeOK(c, s.store.TokenTrend(queryInt(c, "days", 7)))
}

func (s *Server) handleTaskAnalysis(c *gin.Context) {
	writeOK(c, s.store.TaskAnalysis())
}

func (s *Server) handleGetSettings(c *gin.Context) {
	section, err := agentrun.ParseSettingsSection(c.Param("section"))
	if err != nil {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	writeOK(c, s.settings.Get(section))
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	section, err := agentrun.ParseSettingsSection(c.Param("section"))
	if err != nil {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSettingsBody))
	if err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.settings.Update(section, raw); err != nil {
		if isValidation(err) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("Persist %s settings failed: %v", section, err)
		writeError(c, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	s.logger.Info("Settings section %s updated by %s", section, s.console.Operator)
	s.publish(broadcast.KeySettingsChanged)
	writeMessage(c, capitalizeFirst(string(section))+" config updated successfully")
}

// queryInt reads an integer query parameter, returning def when absent or
// malformed.
func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	if s == "llm" {
		return "LLM"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
