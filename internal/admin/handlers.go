package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sharerelay/internal/errors"
	"sharerelay/internal/stream"
)

// ── probes and stats ─────────────────────────────────────────────────

func (s *Server) health(c *gin.Context) {
	s.Metrics.RecordHealthCheck()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    s.Metrics.Uptime().Truncate(time.Second).String(),
		"sessions":  s.Registry.SessionCount(),
	})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.Directory.Ready(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"directory": "unhealthy",
			"error":     err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "directory": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.Snapshot())
}

type shareView struct {
	User    string           `json:"user"`
	Started time.Time        `json:"started"`
	Viewers []string         `json:"viewers"`
	Stream  *stream.LinkInfo `json:"stream"`
}

func (s *Server) shares(c *gin.Context) {
	links := make(map[string]stream.LinkInfo)
	if s.Links != nil {
		for _, li := range s.Links.Links() {
			links[li.User] = li
		}
	}

	out := make([]shareView, 0)
	for _, sh := range s.Registry.Shares() {
		v := shareView{User: sh.Owner(), Started: sh.Started(), Viewers: sh.ViewerNames()}
		if li, ok := links[v.User]; ok {
			v.Stream = &li
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"shares": out, "count": len(out)})
}

// ── users ────────────────────────────────────────────────────────────

type registerRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Confirm        string `json:"confirm_password"`
	InvitationCode string `json:"invitation_code"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}
	u, err := s.Directory.Register(c.Request.Context(), req.Username, req.Password, req.Confirm, req.InvitationCode)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

func (s *Server) authenticate(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}
	u, err := s.Directory.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (s *Server) userExists(c *gin.Context) {
	name := c.Param("username")
	ok, err := s.Directory.UsernameExists(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": name, "exists": ok})
}

// ── invitations ──────────────────────────────────────────────────────

type inviteRequest struct {
	Username string `json:"username"`
	Seed     string `json:"seed"`
}

type validateRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
}

func (s *Server) createInvitation(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}
	inv, err := s.Directory.Invite(c.Request.Context(), req.Username, req.Seed)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (s *Server) invitationStatus(c *gin.Context) {
	code := c.Param("code")
	used, err := s.Directory.IsInvitationCodeUsed(c.Request.Context(), code)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "used": used})
}

func (s *Server) validateInvitation(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}
	ok, err := s.Directory.ValidateInvitationCode(c.Request.Context(), req.Code, req.Username)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": req.Code, "username": req.Username, "valid": ok})
}

// fail maps directory errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrMissingField),
		errors.Is(err, errors.ErrPasswordMismatch),
		errors.Is(err, errors.ErrInvitationInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, errors.ErrUserExists),
		errors.Is(err, errors.ErrInvitationUsed),
		errors.Is(err, errors.ErrInvitationExists):
		status = http.StatusConflict
	case errors.Is(err, errors.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.Metrics.RecordError(err.Error())
		s.Logger.Errorw("directory request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
