// Package api exposes the HTTP request/response surface: onboarding,
// verification, matchmaking, queue management, and safety checks. Policy
// blocks (ban, cooldown, daily cap, unverified) are surfaced with distinct
// codes so clients can render them differently from malformed input.
package api

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veilchat/veil/internal/identity"
	"github.com/veilchat/veil/internal/matching"
	"github.com/veilchat/veil/internal/metrics"
	"github.com/veilchat/veil/internal/moderation"
	"github.com/veilchat/veil/internal/ws"
)

// MinDeviceIDLen is the minimum accepted device identifier length.
const MinDeviceIDLen = 8

// Handler carries the dependencies of the REST surface.
type Handler struct {
	Users      *identity.Store
	Classifier identity.Classifier
	Matcher    *matching.Service
	Queue      *matching.Queue
	Moderation *moderation.Store
	Relay      *ws.Server
}

// Routes registers all endpoints on the given engine.
func (h *Handler) Routes(r *gin.Engine) {
	r.POST("/onboarding/init", h.initOnboarding)
	r.POST("/profile/setup", h.setupProfile)
	r.POST("/verify/gender", h.verifyGender)
	r.POST("/match/find", h.findMatch)
	r.GET("/match/status", h.matchStatus)
	r.POST("/queue/join", h.joinQueue)
	r.POST("/queue/leave", h.leaveQueue)
	r.POST("/safety/check", h.safetyCheck)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if h.Relay != nil {
		r.GET("/ws", func(c *gin.Context) {
			h.Relay.HandleUpgrade(c.Writer, c.Request)
		})
	}
}

// deviceID validates the identifier shared by every request body.
func deviceID(c *gin.Context, raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if len(id) < MinDeviceIDLen {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error", "code": "invalid_device_id",
			"message": "device id must be at least 8 characters",
		})
		return "", false
	}
	return id, true
}

func (h *Handler) initOnboarding(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "bad_request", "message": err.Error()})
		return
	}
	id, ok := deviceID(c, req.DeviceID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "device_id": id, "message": "device registered for onboarding"})
}

func (h *Handler) setupProfile(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id"`
		Nickname string `json:"nickname"`
		Bio      string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "bad_request", "message": err.Error()})
		return
	}
	id, ok := deviceID(c, req.DeviceID)
	if !ok {
		return
	}
	if len(req.Nickname) == 0 || len(req.Nickname) > 20 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "invalid_nickname", "message": "nickname must be 1-20 characters"})
		return
	}
	if len(req.Bio) > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "invalid_bio", "message": "bio must be at most 100 characters"})
		return
	}

	if err := h.Users.SaveProfile(c.Request.Context(), id, req.Nickname, req.Bio); err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "nickname": strings.TrimSpace(req.Nickname)})
}

// verifyGender delegates to the external classifier, persists the outcome,
// and discards the image. An unknown result is a valid outcome: the
// participant stays barred from gendered queues until reverified.
func (h *Handler) verifyGender(c *gin.Context) {
	var req struct {
		DeviceID    string `json:"device_id"`
		ImageBase64 string `json:"image_base64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "bad_request", "message": err.Error()})
		return
	}
	id, ok := deviceID(c, req.DeviceID)
	if !ok {
		return
	}
	if req.ImageBase64 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "missing_image", "message": "image_base64 is required"})
		return
	}

	gender, err := h.Classifier.Classify(c.Request.Context(), req.ImageBase64)
	if err != nil {
		gender = identity.GenderUnknown
	}
	if err := h.Users.SaveGender(c.Request.Context(), id, gender); err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verified", "gender": string(gender)})
}

func (h *Handler) findMatch(c *gin.Context) {
	var req struct {
		DeviceID     string `json:"device_id"`
		Preference   string `json:"preference"`
		Continuation bool   `json:"continuation"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "bad_request", "message": err.Error()})
		return
	}
	id, ok := deviceID(c, req.DeviceID)
	if !ok {
		return
	}
	pref, ok := identity.ParsePreference(req.Preference)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "invalid_preference", "message": "preference must be male, female or any"})
		return
	}

	result, err := h.Matcher.FindMatch(c.Request.Context(), id, pref, req.Continuation)
	if err != nil {
		h.policyBlock(c, err)
		return
	}

	if result.Status == matching.StatusMatched {
		c.JSON(http.StatusOK, gin.H{"status": "matched", "partner_id": result.PartnerID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}

func (h *Handler) matchStatus(c *gin.Context) {
	id, ok := deviceID(c, c.Query("device_id"))
	if !ok {
		return
	}
	result, err := h.Matcher.Status(c.Request.Context(), id)
	if err != nil {
		h.unavailable(c, err)
		return
	}
	if result.Status == matching.StatusMatched {
		c.JSON(http.StatusOK, gin.H{"status": "matched", "partner_id": result.PartnerID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "waiting"})
}

func (h *Handler) joinQueue(c *gin.Context) {
	var req struct {
		DeviceID   string `json:"device_id"`
		Preference string `json:"preference"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "bad_request", "message": err.Error()})
		return
	}
	id, ok := deviceID(c, req.DeviceID)
	if !ok {
		return
	}
	pref, ok := identity.ParsePreference(req.Preference)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "invalid_preference", "message": "preference must be male, female or any"})
		return
	}

	joined, err := h.Queue.Join(c.Request.Context(), id, pref)
	if err != nil {
		h.unavailable(c, err)
		return
	}
	if !joined {
		c.JSON(http.StatusForbidden, gin.H{"status": "blocked", "code": "unverified", "message": "gender verification required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "joined"})
}

func (h *Handler) leaveQueue(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "bad_request", "message": err.Error()})
		return
	}
	id, ok := deviceID(c, req.DeviceID)
	if !ok {
		return
	}
	if err := h.Queue.LeaveAll(c.Request.Context(), id); err != nil {
		h.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

func (h *Handler) safetyCheck(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "code": "bad_request", "message": err.Error()})
		return
	}
	id, ok := deviceID(c, req.DeviceID)
	if !ok {
		return
	}

	banned, remaining, reason, err := h.Moderation.IsBanned(c.Request.Context(), id)
	if err != nil {
		h.unavailable(c, err)
		return
	}
	if banned {
		c.JSON(http.StatusForbidden, gin.H{
			"status": "blocked", "code": "banned",
			"reason": reason, "retry_after": remaining,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.Relay != nil {
		resp["connections"] = h.Relay.Registry().Count()
		resp["uptime"] = h.Relay.Uptime().Round(time.Second).String()
	}
	c.JSON(http.StatusOK, resp)
}

// policyBlock maps matcher sentinel errors to distinct client-visible codes.
func (h *Handler) policyBlock(c *gin.Context, err error) {
	switch {
	case errors.Is(err, matching.ErrBanned):
		c.JSON(http.StatusForbidden, gin.H{"status": "blocked", "code": "banned", "message": "account suspended"})
	case errors.Is(err, matching.ErrOnCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"status": "blocked", "code": "cooldown", "message": "cooldown active, please wait"})
	case errors.Is(err, matching.ErrDailyLimit):
		c.JSON(http.StatusTooManyRequests, gin.H{"status": "blocked", "code": "daily_limit", "message": "daily specific-filter limit reached"})
	case errors.Is(err, matching.ErrUnverified):
		c.JSON(http.StatusForbidden, gin.H{"status": "blocked", "code": "unverified", "message": "gender verification required"})
	default:
		h.unavailable(c, err)
	}
}

func (h *Handler) unavailable(c *gin.Context, err error) {
	log.Printf("[api] store error: %v", err)
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "code": "unavailable", "message": "service unavailable"})
}
