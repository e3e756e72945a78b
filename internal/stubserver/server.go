// Package stubserver emulates the slice of the RecyConnect backend the
// notifier talks to: login, the notification REST surface, and websocket
// push. It keeps everything in memory so the client can be exercised
// end-to-end with zero infrastructure.
package stubserver

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/recyconnect/notify/internal/channel"
	"github.com/recyconnect/notify/internal/feed"
)

// Options configures a stub Server.
type Options struct {
	// Secret signs the demo bearer tokens.
	Secret string
}

// demoUser is an account the stub creates on first login.
type demoUser struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	EcoPoints int    `json:"ecoPoints"`
	Rank      int64  `json:"rank"`
}

// Server is the stub backend.
type Server struct {
	echo   *echo.Echo
	repo   *repo
	hub    *Hub
	secret []byte

	mu      sync.Mutex
	byEmail map[string]*demoUser
	byID    map[string]*demoUser
	nextID  int64
}

// New builds a Server with its routes registered.
func New(opts Options) *Server {
	secret := opts.Secret
	if secret == "" {
		secret = "recyconnect-stub-secret"
	}

	s := &Server{
		repo:    newRepo(),
		hub:     NewHub(),
		secret:  []byte(secret),
		byEmail: make(map[string]*demoUser),
		byID:    make(map[string]*demoUser),
		nextID:  1,
	}

	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
	}))

	// No auth required
	e.GET("/health", s.handleHealth)
	e.POST("/auth/login", s.handleLogin)
	e.POST("/demo/notify", s.handleDemoNotify)

	// Authenticated surface, mirroring the production paths
	api := e.Group("/api")
	api.Use(s.bearerAuth())
	api.GET("/notifications", s.handleList)
	api.GET("/notifications/unread-count", s.handleUnreadCount)
	api.POST("/notifications/:id/read", s.handleMarkRead)
	api.GET("/users/me", s.handleMe)

	// Websocket handshake endpoint
	ws := e.Group("/ws")
	ws.Use(s.bearerAuth())
	ws.GET("", s.handleWS)

	s.echo = e
	return s
}

// Handler exposes the server as an http.Handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr. Blocks until Shutdown.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

// --- Accounts ---

// userForEmail finds or creates a demo account. Emails starting with "ngo"
// get the NGO role so both dashboards can be exercised.
func (s *Server) userForEmail(email string) *demoUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byEmail[email]; ok {
		return u
	}

	role := "USER"
	if len(email) >= 3 && email[:3] == "ngo" {
		role = "NGO"
	}
	u := &demoUser{
		ID:        s.nextID,
		Name:      email,
		Email:     email,
		Role:      role,
		EcoPoints: 120,
		Rank:      int64(s.nextID),
	}
	s.nextID++
	s.byEmail[email] = u
	s.byID[strconv.FormatInt(u.ID, 10)] = u
	return u
}

func (s *Server) userByID(id string) (*demoUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	return u, ok
}

// --- REST handlers ---

// handleLogin POST /auth/login — any password is accepted, this is a stub.
func (s *Server) handleLogin(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}

	u := s.userForEmail(req.Email)
	token, err := s.issueToken(u.ID, u.Role)
	if err != nil {
		return echo.ErrInternalServerError
	}

	log.Info().Str("email", u.Email).Str("role", u.Role).Msg("demo login")
	return c.JSON(http.StatusOK, map[string]string{"token": token, "role": u.Role})
}

// handleList GET /api/notifications
func (s *Server) handleList(c echo.Context) error {
	return c.JSON(http.StatusOK, s.repo.List(mustUserID(c)))
}

// handleUnreadCount GET /api/notifications/unread-count — bare number,
// matching the production response body.
func (s *Server) handleUnreadCount(c echo.Context) error {
	return c.JSON(http.StatusOK, s.repo.UnreadCount(mustUserID(c)))
}

// handleMarkRead POST /api/notifications/:id/read
func (s *Server) handleMarkRead(c echo.Context) error {
	id := c.Param("id")
	if !s.repo.MarkRead(mustUserID(c), feed.ID(id)) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown notification")
	}
	return c.NoContent(http.StatusOK)
}

// handleMe GET /api/users/me
func (s *Server) handleMe(c echo.Context) error {
	u, ok := s.userByID(mustUserID(c))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown user")
	}
	return c.JSON(http.StatusOK, u)
}

// handleDemoNotify POST /demo/notify — injects a notification for a user
// and pushes it live. Body: {"email": ..., "message": ...}.
func (s *Server) handleDemoNotify(c echo.Context) error {
	var req struct {
		Email   string `json:"email"`
		Message string `json:"message"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and message are required")
	}

	u := s.userForEmail(req.Email)
	uid := strconv.FormatInt(u.ID, 10)
	n := s.repo.Create(uid, req.Message)
	s.hub.Push(uid, n)

	log.Info().Str("user", uid).Str("id", string(n.ID)).Msg("demo notification pushed")
	return c.JSON(http.StatusOK, n)
}

// handleHealth GET /health
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.hub.ConnectedCount(),
	})
}

// --- Websocket handler ---

var upgrader = websocket.Upgrader{
	// The stub serves local dev clients only.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS GET /ws — upgrades, expects a subscribe frame for the caller's
// own queue, then streams push frames until the peer goes away.
func (s *Server) handleWS(c echo.Context) error {
	userID := mustUserID(c)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	var sub struct {
		Type        string `json:"type"`
		Destination string `json:"destination"`
	}
	if err := conn.ReadJSON(&sub); err != nil {
		return nil
	}
	if sub.Type != "subscribe" || sub.Destination != channel.QueueDestination(userID) {
		log.Warn().Str("user", userID).Str("destination", sub.Destination).Msg("rejecting subscription to foreign queue")
		return nil
	}

	send := make(chan []byte, 32)
	client := s.hub.Register(userID, send)
	defer s.hub.Unregister(client)

	// Reader only detects the peer closing.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return nil
			}
		case <-readerDone:
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// --- Demo generator ---

// RunDemo periodically fabricates a notification for every known account
// until ctx ends. Gives `notify run` something to show out of the box.
func (s *Server) RunDemo(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	builders := []func(i int) string{
		func(int) string { return PickupRequested("Green Park") },
		func(int) string { return PickupConfirmed("EcoCycle NGO") },
		func(i int) string { return PickupCompleted(25 + 5*i) },
		func(int) string { return ReviewReceived("Priya") },
		func(i int) string { return RankChanged(i%20 + 1) },
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			users := make([]*demoUser, 0, len(s.byID))
			for _, u := range s.byID {
				users = append(users, u)
			}
			s.mu.Unlock()

			for _, u := range users {
				uid := strconv.FormatInt(u.ID, 10)
				n := s.repo.Create(uid, builders[i%len(builders)](i))
				s.hub.Push(uid, n)
			}
			i++
		}
	}
}
