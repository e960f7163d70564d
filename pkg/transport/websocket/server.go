package websocket

import (
	stderrors "errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/campuslink/presence/internal/logging"
	"github.com/campuslink/presence/pkg/domain"
)

// ServerOptions represents websocket server options
type ServerOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	Client          ClientOptions
	Hub             domain.Hub
	Logger          *logging.Logger
}

// ServerOption is a function that configures ServerOptions
type ServerOption func(*ServerOptions)

// WithHub sets the hub for the server
func WithHub(hub domain.Hub) ServerOption {
	return func(o *ServerOptions) {
		o.Hub = hub
	}
}

// WithLogger sets the logger for the server
func WithLogger(logger *logging.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = logger
	}
}

// WithCheckOrigin sets the check origin function
func WithCheckOrigin(checkOrigin func(r *http.Request) bool) ServerOption {
	return func(o *ServerOptions) {
		o.CheckOrigin = checkOrigin
	}
}

// WithClientOptions sets the per-connection options
func WithClientOptions(options ClientOptions) ServerOption {
	return func(o *ServerOptions) {
		o.Client = options
	}
}

// Server accepts websocket connections and hands them to the hub. A freshly
// accepted connection is anonymous; identity arrives later through the
// protocol, so the server attaches no user state here.
type Server struct {
	upgrader websocket.Upgrader
	hub      domain.Hub
	logger   *logging.Logger
	options  ServerOptions
}

// NewServer creates a new WebSocket server
func NewServer(opts ...ServerOption) *Server {
	options := ServerOptions{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Client:          DefaultClientOptions(),
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins by default (configure for production)
		},
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  options.ReadBufferSize,
			WriteBufferSize: options.WriteBufferSize,
			CheckOrigin:     options.CheckOrigin,
		},
		hub:     options.Hub,
		logger:  options.Logger,
		options: options,
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade error",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		return
	}

	clientID := xid.New().String()
	client := NewClient(clientID, conn, s.logger, s.options.Client)

	client.Receive(func(message []byte) error {
		return s.hub.Inbound(clientID, message)
	})

	if err := s.hub.Register(client); err != nil {
		s.logger.Error("failed to register client",
			"error", err,
			"client_id", clientID,
		)
		client.Close(websocket.CloseTryAgainLater, "server unavailable")
		return
	}

	client.Start()

	s.logger.Info("client connected",
		"client_id", clientID,
		"remote_addr", r.RemoteAddr,
	)

	// Wait for the connection to go away for any reason
	<-client.Context().Done()

	if err := s.hub.Unregister(clientID); err != nil && !stderrors.Is(err, domain.ErrHubStopped) {
		s.logger.Error("failed to unregister client",
			"error", err,
			"client_id", clientID,
		)
	}

	s.logger.Info("client disconnected", "client_id", clientID)
}
