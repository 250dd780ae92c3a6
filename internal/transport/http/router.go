package http

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/auth"
)

// RouterConfig carries the dependencies of NewRouter.
type RouterConfig struct {
	Service    *app.GameService
	Bus        *app.Broadcaster
	Issuer     *auth.Issuer
	AdminToken string
	Log        logrus.FieldLogger
}

// NewRouter wires every HTTP and websocket route behind the request logger.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	ws := NewWSHandler(cfg.Service, cfg.Bus, cfg.Issuer, cfg.Log)
	mux.HandleFunc("GET /ws", ws.ServeWS)

	rooms := NewRoomsHandler(cfg.Service, cfg.Log)
	rooms.Register(mux, Authenticate(cfg.Issuer))
	rooms.RegisterAdmin(mux, RequireAdmin(cfg.AdminToken))

	return LogMiddleware(cfg.Log)(mux)
}
