// Package api is the REST and WebSocket-upgrade surface in front of
// OBS, ME and SFO, grounded on the teacher's pkg/api/server.go (mux
// router, /api/v1 subrouter, CORS, respondJSON/respondError helpers).
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/inbound"
	"github.com/uhyunpark/tradecore/internal/matching"
	"github.com/uhyunpark/tradecore/internal/obs"
	"github.com/uhyunpark/tradecore/internal/sfo"
)

// Server wires the Order Book Service, the Matching Engine and the
// Session Fan-Out hub behind a single HTTP listener.
type Server struct {
	obs      *obs.Service
	engine   *matching.Engine
	hub      *sfo.Hub
	resolver *inbound.Resolver
	logger   *zap.Logger
	router   *mux.Router
}

func NewServer(o *obs.Service, e *matching.Engine, hub *sfo.Hub, logger *zap.Logger) *Server {
	s := &Server{
		obs:      o,
		engine:   e,
		hub:      hub,
		resolver: inbound.NewResolver(),
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	v1.HandleFunc("/orders/{id}", s.handleUpdateOrder).Methods("PATCH")
	v1.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")

	v1.HandleFunc("/markets/{contract}/orderbook", s.handleGetOrderbook).Methods("GET")
	v1.HandleFunc("/trades", s.handleGetRecentTrades).Methods("GET")

	v1.HandleFunc("/accounts/{owner}/orders", s.handleGetUserOrders).Methods("GET")
	v1.HandleFunc("/accounts/{owner}/trades", s.handleGetUserTrades).Methods("GET")
	v1.HandleFunc("/accounts/{owner}/summary", s.handleGetAccountSummary).Methods("GET")

	v1.HandleFunc("/inbound", s.handleInboundMessage).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped root handler, ready for
// http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}
