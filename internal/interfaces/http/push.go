package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"mypace/internal/domain/push"
)

type PushHandler struct {
	pushService *push.Service
}

func NewPushHandler(pushService *push.Service) *PushHandler {
	return &PushHandler{pushService: pushService}
}

// --- Request/Response types ---

type subscriptionKeys struct {
	Auth   string `json:"auth"`
	P256dh string `json:"p256dh"`
}

// SubscribeRequest carries the browser's PushSubscription JSON plus the
// recipient pubkey it belongs to.
type SubscribeRequest struct {
	Pubkey     string           `json:"pubkey"`
	Endpoint   string           `json:"endpoint"`
	Keys       subscriptionKeys `json:"keys"`
	Preference string           `json:"preference"`
}

type UnsubscribeRequest struct {
	Pubkey   string `json:"pubkey"`
	Endpoint string `json:"endpoint"`
}

type PreferenceRequest struct {
	Pubkey     string `json:"pubkey"`
	Endpoint   string `json:"endpoint"`
	Preference string `json:"preference"`
}

type SendRequest struct {
	Pubkey string `json:"pubkey"`
	Type   string `json:"type"`
}

type SubscriptionResponse struct {
	ID         string `json:"id"`
	Endpoint   string `json:"endpoint"`
	Preference string `json:"preference"`
}

const maxPushBodySize = 1 << 20 // 1 MiB

// --- Handlers ---

// HandleSubscription handles POST (register) and DELETE (unsubscribe)
// on /api/push/subscribe
func (h *PushHandler) HandleSubscription(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubscribe(w, r)
	case http.MethodDelete:
		h.handleUnsubscribe(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *PushHandler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.pushService.Subscribe(r.Context(), push.CreateSubscriptionParams{
		Pubkey:     req.Pubkey,
		Endpoint:   req.Endpoint,
		Auth:       req.Keys.Auth,
		P256dh:     req.Keys.P256dh,
		Preference: req.Preference,
	})
	if err != nil {
		if errors.Is(err, push.ErrInvalidSubscription) || errors.Is(err, push.ErrInvalidPreference) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Error registering push subscription: %v", err)
		http.Error(w, "Failed to register subscription", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(SubscriptionResponse{
		ID:         sub.ID,
		Endpoint:   sub.Endpoint,
		Preference: sub.Preference,
	})
}

func (h *PushHandler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.pushService.Unsubscribe(r.Context(), req.Pubkey, req.Endpoint); err != nil {
		if errors.Is(err, push.ErrInvalidSubscription) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Error removing push subscription: %v", err)
		http.Error(w, "Failed to remove subscription", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandlePreference handles PUT /api/push/preference
func (h *PushHandler) HandlePreference(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PreferenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.pushService.UpdatePreference(r.Context(), req.Pubkey, req.Endpoint, req.Preference)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, push.ErrSubscriptionNotFound):
		http.Error(w, "Subscription not found", http.StatusNotFound)
	case errors.Is(err, push.ErrInvalidPreference), errors.Is(err, push.ErrInvalidSubscription):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Error updating push preference: %v", err)
		http.Error(w, "Failed to update preference", http.StatusInternalServerError)
	}
}

// HandleSend handles POST /api/push/send. Delivery is best-effort and
// fire-and-forget: the request is validated synchronously, then accepted
// while the fan-out runs in the background. Delivery failures surface only
// in logs, never to the caller.
func (h *PushHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Pubkey == "" {
		http.Error(w, "pubkey is required", http.StatusBadRequest)
		return
	}
	if !push.IsValidType(req.Type) {
		http.Error(w, "type must be one of stella, reply, repost", http.StatusBadRequest)
		return
	}

	go func() {
		// Detached from the request context: delivery outlives the response.
		if err := h.pushService.SendToUser(context.Background(), req.Pubkey, req.Type); err != nil {
			log.Printf("Push send failed for pubkey %s: %v", req.Pubkey, err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// HandleHealth handles GET /health
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxPushBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}
