package main

import (
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"i4.energy/across/espgw/modem"
)

// RequestIDHeader carries the id assigned to every API request.
const RequestIDHeader = "X-Request-ID"

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *zap.Logger
	Modem  *modem.Modem
	// Hub feeds /frames/ws; nil disables the stream.
	Hub *FrameHub
	// FrameWait is the default wait of GET /frames.
	FrameWait time.Duration
	// FramesPolled is set when a FramePoller consumes inbound frames;
	// GET /frames then answers 409 and clients use /frames/ws instead.
	FramesPolled   bool
	AllowedOrigins []string

	once     sync.Once
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(s.setup)
	s.engine.ServeHTTP(w, r)
}

func (s *Server) setup() {
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	r := gin.New()
	r.Use(s.recovery(), s.requestID(), s.logRequests(), s.cors())

	r.GET("/health", s.handleHealth)
	r.POST("/reset", s.handleReset)

	wifi := r.Group("/wifi")
	wifi.POST("/mode", s.handleWiFiMode)
	wifi.POST("/join", s.handleJoin)
	wifi.POST("/ap", s.handleAccessPoint)

	links := r.Group("/links")
	links.POST("", s.handleOpenLink)
	links.DELETE("/:link", s.handleCloseLink)
	links.POST("/:link/send", s.handleSend)
	links.POST("/:link/http", s.handleHTTP)

	r.GET("/frames", s.handleFrame)
	r.GET("/frames/ws", s.handleFrameStream)

	s.engine = r
}

func (s *Server) cors() gin.HandlerFunc {
	config := cors.DefaultConfig()
	if len(s.AllowedOrigins) > 0 {
		config.AllowOrigins = s.AllowedOrigins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", RequestIDHeader}
	config.ExposeHeaders = []string{"Content-Length", RequestIDHeader}
	return cors.New(config)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || len(s.AllowedOrigins) == 0 || slices.Contains(s.AllowedOrigins, origin)
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.Logger.Warn("API request failed", fields...)
			return
		}
		s.Logger.Debug("API request", fields...)
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.Logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stacktrace"),
		)
		s.sendError(c, "internal server error", http.StatusInternalServerError)
	})
}

func (s *Server) sendError(c *gin.Context, message string, statusCode int) {
	if message == "" {
		c.AbortWithStatus(statusCode)
		return
	}
	c.AbortWithStatusJSON(statusCode, gin.H{"message": message})
}

// statusFor maps a modem outcome to an HTTP status. empty is used for
// ErrEmptyData and ErrEmptyStream, whose meaning depends on the endpoint.
func statusFor(err error, empty int) int {
	switch {
	case errors.Is(err, modem.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, modem.ErrEmptyData), errors.Is(err, modem.ErrEmptyStream):
		return empty
	case errors.Is(err, modem.ErrInvalidLink), errors.Is(err, modem.ErrCommandTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// reply writes the outcome of a modem operation.
func (s *Server) reply(c *gin.Context, op string, err error) {
	if err != nil {
		s.Logger.Error("Modem operation failed",
			zap.String("operation", op),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
		s.sendError(c, err.Error(), statusFor(err, http.StatusBadRequest))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// callOptions reads the optional ?timeout= override.
func (s *Server) callOptions(c *gin.Context) ([]modem.CallOption, bool) {
	raw := c.Query("timeout")
	if raw == "" {
		return nil, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		s.sendError(c, "invalid timeout "+raw, http.StatusBadRequest)
		return nil, false
	}
	return []modem.CallOption{modem.WithTimeout(d)}, true
}

func (s *Server) linkParam(c *gin.Context) (modem.LinkID, bool) {
	link, err := modem.ParseLinkID(c.Param("link"))
	if err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return modem.LinkNone, false
	}
	return link, true
}

func (s *Server) handleHealth(c *gin.Context) {
	opts, ok := s.callOptions(c)
	if !ok {
		return
	}
	s.reply(c, "probe", s.Modem.Probe(opts...))
}

func (s *Server) handleReset(c *gin.Context) {
	opts, ok := s.callOptions(c)
	if !ok {
		return
	}
	s.reply(c, "reset", s.Modem.Reset(opts...))
}

func (s *Server) handleWiFiMode(c *gin.Context) {
	type ModeRequest struct {
		Mode int `json:"mode" binding:"required,min=1,max=3"`
	}

	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	opts, ok := s.callOptions(c)
	if !ok {
		return
	}
	s.reply(c, "set-mode", s.Modem.SetWiFiMode(modem.WiFiMode(req.Mode), opts...))
}

func (s *Server) handleJoin(c *gin.Context) {
	type JoinRequest struct {
		SSID     string `json:"ssid" binding:"required"`
		Password string `json:"password"`
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	opts, ok := s.callOptions(c)
	if !ok {
		return
	}
	s.reply(c, "join-ap", s.Modem.JoinAP(req.SSID, req.Password, opts...))
}

func (s *Server) handleAccessPoint(c *gin.Context) {
	type AccessPointRequest struct {
		SSID       string `json:"ssid" binding:"required"`
		Password   string `json:"password"`
		Channel    int    `json:"channel" binding:"min=0,max=14"`
		Encryption int    `json:"encryption" binding:"oneof=0 2 3 4"`
	}

	var req AccessPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	opts, ok := s.callOptions(c)
	if !ok {
		return
	}

	channel := modem.Channel(req.Channel)
	if channel == 0 {
		channel = modem.DefaultChannel
	}
	err := s.Modem.ConfigureAP(req.SSID, req.Password, channel, modem.Encryption(req.Encryption), opts...)
	s.reply(c, "configure-ap", err)
}

func (s *Server) handleOpenLink(c *gin.Context) {
	type LinkRequest struct {
		Link      string `json:"link"`
		Protocol  string `json:"protocol" binding:"required,oneof=tcp udp"`
		Host      string `json:"host" binding:"required"`
		Port      uint16 `json:"port" binding:"required"`
		LocalPort uint16 `json:"local_port"`
		UDPMode   uint8  `json:"udp_mode" binding:"max=2"`
	}

	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	link, err := modem.ParseLinkID(req.Link)
	if err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	opts, ok := s.callOptions(c)
	if !ok {
		return
	}

	if req.Protocol == "tcp" {
		s.reply(c, "start-tcp", s.Modem.StartTCP(link, req.Host, req.Port, opts...))
		return
	}
	local := req.LocalPort
	if local == 0 {
		local = modem.DefaultUDPLocalPort
	}
	err = s.Modem.StartUDP(link, req.Host, req.Port, local, modem.UDPMode(req.UDPMode), opts...)
	s.reply(c, "start-udp", err)
}

func (s *Server) handleCloseLink(c *gin.Context) {
	link, ok := s.linkParam(c)
	if !ok {
		return
	}
	opts, ok := s.callOptions(c)
	if !ok {
		return
	}
	s.reply(c, "close", s.Modem.Close(link, opts...))
}

func (s *Server) handleSend(c *gin.Context) {
	link, ok := s.linkParam(c)
	if !ok {
		return
	}
	data, err := c.GetRawData()
	if err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	opts, ok := s.callOptions(c)
	if !ok {
		return
	}
	s.reply(c, "send", s.Modem.Send(link, data, opts...))
}

func (s *Server) handleHTTP(c *gin.Context) {
	type HTTPRequest struct {
		Method string `json:"method" binding:"required,oneof=GET POST"`
		Path   string `json:"path"`
		Query  string `json:"query"`
		Body   string `json:"body"`
	}

	link, ok := s.linkParam(c)
	if !ok {
		return
	}
	var req HTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.sendError(c, err.Error(), http.StatusBadRequest)
		return
	}
	opts, ok := s.callOptions(c)
	if !ok {
		return
	}

	if req.Method == "GET" {
		s.reply(c, "http-get", s.Modem.HTTPGet(link, req.Path, req.Query, opts...))
		return
	}
	s.reply(c, "http-post", s.Modem.HTTPPost(link, req.Path, []byte(req.Body), opts...))
}

// handleFrame performs a single receive. 204 means nothing was pending.
func (s *Server) handleFrame(c *gin.Context) {
	if s.FramesPolled {
		s.sendError(c, "frames are consumed by the background poller, use /frames/ws", http.StatusConflict)
		return
	}

	wait := s.FrameWait
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			s.sendError(c, "invalid wait "+raw, http.StatusBadRequest)
			return
		}
		wait = d
	}

	buf := make([]byte, modem.MaxFrameLength+1)
	frame, err := s.Modem.Receive(buf, wait)
	if err != nil {
		status := statusFor(err, http.StatusNoContent)
		if status == http.StatusNoContent {
			c.Status(status)
			return
		}
		s.Logger.Error("Receive failed", zap.Error(err))
		s.sendError(c, err.Error(), status)
		return
	}
	c.JSON(http.StatusOK, newFrameMessage(frame, buf))
}

// handleFrameStream pushes every frame seen by the poller to a websocket
// client until it disconnects.
func (s *Server) handleFrameStream(c *gin.Context) {
	if s.Hub == nil {
		s.sendError(c, "frame stream disabled", http.StatusServiceUnavailable)
		return
	}

	frames, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warn("Failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	clientID := c.GetString("request_id")
	s.Logger.Info("Frame stream client connected",
		zap.String("client_id", clientID),
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.Logger.Info("Frame stream client disconnected", zap.String("client_id", clientID))
			return
		case msg := <-frames:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.Logger.Warn("Frame stream write failed",
					zap.String("client_id", clientID),
					zap.Error(err),
				)
				return
			}
		}
	}
}
