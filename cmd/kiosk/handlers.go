package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"

	"absengo/internal/attendance"
	"absengo/internal/auth"
	"absengo/internal/cache"
	"absengo/internal/config"
	"absengo/internal/dashboard"
	"absengo/internal/export"
	"absengo/internal/history"
	"absengo/internal/queue"
	"absengo/internal/token"
	"absengo/internal/ws"
)

type handlers struct {
	cfg      config.App
	loc      *time.Location
	recorder *attendance.Service
	views    *history.Model
	repo     *attendance.Repository
	mirror   *cache.Mirror
	queue    queue.Queue
	rotator  *token.Rotator
	hub      *ws.Hub
	board    *dashboard.Dashboard
}

func (h *handlers) register(r *gin.Engine) {
	r.POST("/api/login", h.login)

	r.GET("/api/token", h.currentToken)
	r.GET("/api/token/qr", h.tokenQR)

	r.GET("/api/absensi/today", h.today)
	r.GET("/api/absensi", h.all)
	r.GET("/api/history/:studentID", h.studentHistory)

	r.GET("/ws", h.handleWebsocket)

	student := r.Group("/api", auth.RequireRole(auth.RoleStudent, h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	student.POST("/scan", h.scan)

	teacher := r.Group("/api", auth.RequireRole(auth.RoleTeacher, h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	teacher.DELETE("/absensi", h.clearAll)
	teacher.GET("/export", h.exportCSV)
	teacher.GET("/export/xlsx", h.exportXLSX)
	teacher.GET("/students", h.listStudents)
	teacher.POST("/students", h.upsertStudent)
	teacher.PUT("/students/:nis", h.upsertStudent)
	teacher.DELETE("/students/:nis", h.deleteStudent)
	teacher.GET("/dashboard", h.dashboardSnapshot)
	teacher.POST("/dashboard/view", h.dashboardView)
}

// login authenticates a student (by enrollment number) or teacher (by
// username) and issues a session token pair.
func (h *handlers) login(c *gin.Context) {
	var req struct {
		Role     string `json:"role" binding:"required"`
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "account store unavailable"})
		return
	}

	var subject, name, hash string
	switch req.Role {
	case auth.RoleStudent:
		student, err := h.repo.GetStudent(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		if student != nil {
			subject, name, hash = student.NIS, student.Name, student.PasswordHash
		}
	case auth.RoleTeacher:
		teacher, err := h.repo.GetTeacher(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		if teacher != nil {
			subject, name, hash = teacher.Username, teacher.Name, teacher.PasswordHash
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	if subject == "" || !auth.CheckPassword(hash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong username or password"})
		return
	}

	tokens, err := auth.Issue(subject, req.Role, name, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          req.Role,
		"name":          name,
	})
}

// currentToken serves the rotation token on display.
func (h *handlers) currentToken(c *gin.Context) {
	tok := h.rotator.Current()
	remaining := h.rotator.Remaining()
	c.JSON(http.StatusOK, gin.H{
		"token":           tok.Value,
		"issued_at":       tok.IssuedAt.Unix(),
		"expires_in":      remaining,
		"countdown_level": token.Level(remaining),
	})
}

// tokenQR renders the current token as a PNG. A codec failure is non-fatal:
// the placeholder image is served and the failure surfaced in a header.
func (h *handlers) tokenQR(c *gin.Context) {
	png, err := token.PNG(h.rotator.Current().Value, 256)
	if err != nil {
		log.Printf("qr render failed: %v", err)
		c.Header("X-Render-Degraded", "placeholder")
	}
	c.Data(http.StatusOK, "image/png", png)
}

// scan records an attendance submission. An empty token marks manual entry.
func (h *handlers) scan(c *gin.Context) {
	var req struct {
		StudentID   string `json:"student_id" binding:"required"`
		StudentName string `json:"student_name"`
		Token       string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	claims, _ := auth.ClaimsFrom(c)
	if claims.Subject != "" && claims.Subject != req.StudentID {
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "session does not match student"})
		return
	}
	name := req.StudentName
	if name == "" {
		name = claims.Name
	}

	var rec attendance.Record
	var err error
	if req.Token == "" {
		rec, err = h.recorder.SubmitManual(c.Request.Context(), req.StudentID, name)
	} else {
		rec, err = h.recorder.Submit(c.Request.Context(), req.StudentID, name, req.Token)
	}

	switch {
	case errors.Is(err, attendance.ErrAlreadyPresent):
		scansTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "warning", "message": "already recorded today"})
		return
	case err != nil:
		scansTotal.WithLabelValues("failed").Inc()
		log.Printf("scan submit failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "could not record attendance"})
		return
	}

	scansTotal.WithLabelValues("accepted").Inc()
	if body, merr := json.Marshal(rec); merr == nil {
		if qerr := h.queue.Publish(c.Request.Context(), queue.Message{Type: queue.TypeScan, Body: body}); qerr != nil {
			log.Printf("queue publish failed: %v", qerr)
		}
	}
	if view, verr := h.views.ForToday(c.Request.Context()); verr == nil {
		h.hub.BroadcastRecord(rec, view.Count)
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "attendance recorded", "record": rec})
}

// today returns today's list for all students. When the ledger is
// unreachable the last-known mirror is served and marked stale.
func (h *handlers) today(c *gin.Context) {
	view, err := h.views.ForToday(c.Request.Context())
	if err != nil {
		log.Printf("today view failed, serving cache: %v", err)
		cached, cerr := h.mirror.Load(c.Request.Context())
		if cerr != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "attendance data unavailable"})
			return
		}
		view = history.Scope(cached, attendance.DateIn(time.Now(), h.loc))
		c.JSON(http.StatusOK, gin.H{"success": true, "data": view.Rows, "placeholder": view.Placeholder, "stale": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view.Rows, "placeholder": view.Placeholder})
}

// all returns the all-time list with a total count.
func (h *handlers) all(c *gin.Context) {
	view, err := h.views.ForAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "attendance data unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view.Rows, "count": view.Count, "placeholder": view.Placeholder})
}

// studentHistory returns one student's records, newest first.
func (h *handlers) studentHistory(c *gin.Context) {
	view, err := h.views.ForStudent(c.Request.Context(), c.Param("studentID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "attendance data unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view.Rows, "placeholder": view.Placeholder})
}

// clearAll is the bulk administrative reset.
func (h *handlers) clearAll(c *gin.Context) {
	if err := h.recorder.ClearAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "reset failed"})
		return
	}
	if err := h.mirror.Clear(c.Request.Context()); err != nil {
		log.Printf("mirror clear failed: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "attendance data cleared"})
}

// exportCSV downloads the attendance list, falling back to the mirror when
// the ledger is unreachable.
func (h *handlers) exportCSV(c *gin.Context) {
	rows := h.exportRows(c)
	filename := export.CSVFilename(time.Now(), h.loc)
	c.Header("Content-Disposition", `attachment; filename=`+filename)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	if err := export.WriteCSV(c.Writer, rows); err != nil {
		log.Printf("csv export failed: %v", err)
	}
}

func (h *handlers) exportXLSX(c *gin.Context) {
	rows := h.exportRows(c)
	buf, err := export.WriteXLSX(rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "export failed"})
		return
	}
	filename := export.XLSXFilename(time.Now(), h.loc)
	c.Header("Content-Disposition", `attachment; filename=`+filename)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	_, _ = c.Writer.Write(buf.Bytes())
}

func (h *handlers) exportRows(c *gin.Context) []attendance.Record {
	view, err := h.views.ForAll(c.Request.Context())
	if err == nil {
		return view.Rows
	}
	log.Printf("export falling back to cache: %v", err)
	cached, cerr := h.mirror.Load(c.Request.Context())
	if cerr != nil {
		return nil
	}
	return cached
}

func (h *handlers) listStudents(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "account store unavailable"})
		return
	}
	students, err := h.repo.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not list students"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": students})
}

func (h *handlers) upsertStudent(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "account store unavailable"})
		return
	}
	var req struct {
		NIS      string `json:"nis"`
		Name     string `json:"name" binding:"required"`
		Class    string `json:"class"`
		Major    string `json:"major"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if nis := c.Param("nis"); nis != "" {
		req.NIS = nis
	}
	if req.NIS == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "nis required"})
		return
	}

	var hash string
	if req.Password != "" {
		var err error
		if hash, err = auth.HashPassword(req.Password); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not store password"})
			return
		}
	}

	err := h.repo.UpsertStudent(c.Request.Context(), attendance.Student{
		NIS:          req.NIS,
		Name:         req.Name,
		Class:        req.Class,
		Major:        req.Major,
		PasswordHash: hash,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not save student"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "student saved"})
}

func (h *handlers) deleteStudent(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "account store unavailable"})
		return
	}
	removed, err := h.repo.DeleteStudent(c.Request.Context(), c.Param("nis"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not delete student"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "student not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "student deleted"})
}

func (h *handlers) dashboardSnapshot(c *gin.Context) {
	if h.board == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "no upstream dashboard configured"})
		return
	}
	c.JSON(http.StatusOK, h.board.Snapshot())
}

func (h *handlers) dashboardView(c *gin.Context) {
	if h.board == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "no upstream dashboard configured"})
		return
	}
	var req struct {
		View string `json:"view" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	switch dashboard.View(req.View) {
	case dashboard.ViewQR, dashboard.ViewHistory:
		h.board.SetView(dashboard.View(req.View))
		c.JSON(http.StatusOK, gin.H{"success": true})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "unknown view"})
	}
}

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebsocket attaches a dashboard to the live feed. The client gets a
// snapshot of today's list first, then per-scan broadcasts.
func (h *handlers) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register(client)

	go func() {
		view, err := h.views.ForToday(c.Request.Context())
		if err != nil {
			return
		}
		payload := map[string]any{
			"type": "attendance:init",
			"payload": map[string]any{
				"data":        view.Rows,
				"today_count": view.Count,
				"placeholder": view.Placeholder,
			},
		}
		if data, err := json.Marshal(payload); err == nil {
			client.Send(data)
		}
	}()

	go client.WritePump()
	go client.ReadPump()
}
