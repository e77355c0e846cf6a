package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradecore/internal/apperr"
	"github.com/uhyunpark/tradecore/internal/model"
	"github.com/uhyunpark/tradecore/internal/obs"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	side := model.Side(req.Side)
	if side != model.Bid && side != model.Offer {
		respondError(w, http.StatusBadRequest, "invalid side", "side must be BID or OFFER")
		return
	}

	order, err := s.obs.CreateOrder(req.Owner, side, price, req.MonthYear, req.Product, req.Qty, req.ExpiresAt)
	if err != nil {
		respondAppErr(w, err)
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	in := obs.UpdateOrderInput{Qty: req.Qty, ExpiresAt: req.ExpiresAt}
	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid price", err.Error())
			return
		}
		in.Price = &price
	}

	order, err := s.obs.UpdateOrder(req.Owner, orderID, in)
	if err != nil {
		respondAppErr(w, err)
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	before, err := s.obs.GetUserOrders(req.Owner)
	if err != nil {
		respondAppErr(w, err)
		return
	}
	var contract string
	for _, o := range before {
		if o.ID == orderID {
			contract = o.Contract
			break
		}
	}

	if err := s.obs.CancelOrder(req.Owner, orderID); err != nil {
		respondAppErr(w, err)
		return
	}

	if contract != "" {
		s.detachIfLastInContract(req.Owner, contract)
	}
	respondJSON(w, map[string]string{"status": "cancelled", "order_id": orderID})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	contractID := mux.Vars(r)["contract"]
	bids, offers, err := s.obs.GetMarketData(contractID)
	if err != nil {
		respondAppErr(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{"contract": contractID, "bids": bids, "offers": offers})
}

func (s *Server) handleGetRecentTrades(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	trades, err := s.obs.GetRecentTrades(limit)
	if err != nil {
		respondAppErr(w, err)
		return
	}
	respondJSON(w, trades)
}

func (s *Server) handleGetUserOrders(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	orders, err := s.obs.GetUserOrders(owner)
	if err != nil {
		respondAppErr(w, err)
		return
	}
	respondJSON(w, orders)
}

func (s *Server) handleGetUserTrades(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	limit := intQuery(r, "limit", 50)
	trades, err := s.obs.GetUserTrades(owner, limit)
	if err != nil {
		respondAppErr(w, err)
		return
	}
	respondJSON(w, trades)
}

func (s *Server) handleGetAccountSummary(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	summary, err := s.obs.GetAccountSummary(owner)
	if err != nil {
		respondAppErr(w, err)
		return
	}
	respondJSON(w, summary)
}

// handleInboundMessage implements the alternate free-text channel of
// spec.md §9: a gateway (SMS, chat webhook) posts the raw reply text,
// the resolver parses it, and ME resolves the smaller party's order-id
// prefix against its pending confirmations.
func (s *Server) handleInboundMessage(w http.ResponseWriter, r *http.Request) {
	var req InboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	cmd, err := s.resolver.Parse(req.Text)
	if err != nil {
		respondJSON(w, InboundMessageResponse{Resolved: false, Reason: err.Error()})
		return
	}

	key, ok := s.engine.ResolveConfirmationByPrefix(cmd.OrderIDPrefix)
	if !ok {
		respondJSON(w, InboundMessageResponse{Resolved: false, Reason: "no pending confirmation matches that order id"})
		return
	}

	if cmd.Accept {
		err = s.engine.AcceptConfirmation(key)
	} else {
		err = s.engine.DeclineConfirmation(key)
	}
	if err != nil {
		respondAppErr(w, err)
		return
	}

	respondJSON(w, InboundMessageResponse{Resolved: true, Accepted: cmd.Accept, Key: key})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		respondError(w, http.StatusBadRequest, "missing owner", "owner query parameter is required")
		return
	}
	admin := r.URL.Query().Get("admin") == "true"

	orders, err := s.obs.GetUserOrders(owner)
	if err != nil {
		respondAppErr(w, err)
		return
	}
	contracts := activeContractsOf(orders)

	if err := s.hub.Attach(w, r, owner, admin, contracts); err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("owner", owner), zap.Error(err))
	}
}

// detachIfLastInContract implements spec.md §4.4's session unsubscribe
// rule: once an owner has no more active orders in a contract, SFO
// drops their membership in that contract's room.
func (s *Server) detachIfLastInContract(owner, contract string) {
	remaining, err := s.obs.GetUserOrders(owner)
	if err != nil {
		s.logger.Warn("detach check: list orders failed", zap.String("owner", owner), zap.Error(err))
		return
	}
	for _, o := range remaining {
		if o.Contract == contract && o.Status == model.Active {
			return
		}
	}
	s.hub.DetachContractForOwner(owner, contract)
}

func activeContractsOf(orders []*model.Order) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range orders {
		if o.Status != model.Active || seen[o.Contract] {
			continue
		}
		seen[o.Contract] = true
		out = append(out, o.Contract)
	}
	return out
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}

// respondAppErr maps the closed apperr taxonomy (spec.md §7) onto HTTP
// status codes.
func respondAppErr(w http.ResponseWriter, err error) {
	switch {
	case apperr.Is(err, apperr.Validation):
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case apperr.Is(err, apperr.Authorization):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case apperr.Is(err, apperr.State):
		respondError(w, http.StatusConflict, "immutable", err.Error())
	case apperr.Is(err, apperr.Conflict):
		respondError(w, http.StatusTooManyRequests, "limit_exceeded", err.Error())
	case apperr.Is(err, apperr.Protocol):
		respondError(w, http.StatusConflict, "protocol", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
