package handler

import (
	"errors"
	"net/http"
	"strconv"

	"stimrun/internal/db"
	"stimrun/internal/input"
	"stimrun/internal/model"
	"stimrun/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SessionHandler struct {
	progress *service.Progress
	abort    *input.Flag
}

func NewSessionHandler(progress *service.Progress, abort *input.Flag) *SessionHandler {
	return &SessionHandler{progress: progress, abort: abort}
}

// GetStatus 当前会话进度
func (h *SessionHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": h.progress.Snapshot(),
	})
}

// Abort 置位中止标记，运行循环在下一帧检查
func (h *SessionHandler) Abort(c *gin.Context) {
	if h.progress.Snapshot().State != service.StateRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "no session is running"})
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "console"
	}
	h.abort.Request(req.Reason)
	c.JSON(http.StatusAccepted, gin.H{"aborted": true, "reason": req.Reason})
}

// ListSessions 历史会话，新的在前
func (h *SessionHandler) ListSessions(c *gin.Context) {
	if !requireDB(c) {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	var sessions []model.Session
	query := db.DB.Model(&model.Session{}).Order("id DESC").Limit(limit)
	if p := c.Query("participant"); p != "" {
		query = query.Where("participant = ?", p)
	}
	if err := query.Find(&sessions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// GetTrials 某个会话的全部数据行
func (h *SessionHandler) GetTrials(c *gin.Context) {
	if !requireDB(c) {
		return
	}
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var rows []model.TrialRow
	if err := db.DB.Where("session_id = ?", id).Order("entry_index").Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"trials":     rows,
	})
}

// GetSummary 某个会话的计数摘要
func (h *SessionHandler) GetSummary(c *gin.Context) {
	if !requireDB(c) {
		return
	}
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var sess model.Session
	if err := db.DB.First(&sess, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	summary, err := service.ComputeSessionSummary(sess.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": sess,
		"summary": summary,
	})
}

func requireDB(c *gin.Context) bool {
	if db.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": service.ErrNoDatabase.Error()})
		return false
	}
	return true
}

func sessionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return uint(id), true
}
