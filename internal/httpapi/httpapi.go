// Copyright 2025 Certen Protocol
//
// Transaction API Handlers
// Provides the ingress HTTP endpoints for submitting transactions and
// querying mempool state.

package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/certen/validator-node/internal/mempool"
	"github.com/certen/validator-node/internal/receiver"
	"github.com/certen/validator-node/internal/types"
)

// TransactionHandlers serves the transaction ingress surface.
type TransactionHandlers struct {
	receiver *receiver.Receiver
	pool     *mempool.MemPool
	logger   *log.Logger
}

// NewTransactionHandlers creates new transaction API handlers.
func NewTransactionHandlers(rcv *receiver.Receiver, pool *mempool.MemPool, logger *log.Logger) *TransactionHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[TransactionAPI] ", log.LstdFlags)
	}
	return &TransactionHandlers{receiver: rcv, pool: pool, logger: logger}
}

// RegisterRoutes wires this handler's endpoints onto mux.
func (h *TransactionHandlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/transactions/validate", h.HandleValidate)
	mux.HandleFunc("/api/v1/transactions/mempool/", h.HandleMemPoolStats)
}

type validateResponse struct {
	IsValid       bool     `json:"isValid"`
	Added         bool     `json:"added"`
	TransactionID string   `json:"transactionId,omitempty"`
	Errors        []string `json:"errors,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// HandleValidate handles POST /api/v1/transactions/validate.
func (h *TransactionHandlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Only POST is allowed")
		return
	}

	var tx types.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		h.writeJSON(w, http.StatusBadRequest, validateResponse{IsValid: false, Errors: []string{"malformed request body"}})
		return
	}

	result := h.receiver.ReceiveTransaction(r.Context(), &tx, time.Now())

	switch {
	case result.Accepted:
		h.writeJSON(w, http.StatusOK, validateResponse{IsValid: true, Added: true, TransactionID: result.TransactionID})
	case len(result.ValidationErrors) == 1 && result.ValidationErrors[0] == "memory pool":
		h.writeJSON(w, http.StatusConflict, validateResponse{IsValid: true, Added: false, Message: "memory pool rejected admission"})
	case result.AlreadyKnown:
		h.writeJSON(w, http.StatusBadRequest, validateResponse{IsValid: false, Errors: []string{"transaction already known"}})
	default:
		h.writeJSON(w, http.StatusBadRequest, validateResponse{IsValid: false, Errors: result.ValidationErrors})
	}
}

// HandleMemPoolStats handles GET /api/v1/transactions/mempool/{registerId}.
func (h *TransactionHandlers) HandleMemPoolStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Only GET is allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/mempool/")
	registerID := strings.TrimSuffix(path, "/")
	if registerID == "" {
		h.writeError(w, http.StatusBadRequest, "registerId is required")
		return
	}

	stats := h.pool.Stats(registerID)
	h.writeJSON(w, http.StatusOK, struct {
		RegisterID string        `json:"registerId"`
		Pending    int           `json:"pending"`
		Stats      mempool.Stats `json:"stats"`
	}{
		RegisterID: registerID,
		Pending:    h.pool.Count(registerID),
		Stats:      stats,
	})
}

func (h *TransactionHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("error encoding response: %v", err)
	}
}

func (h *TransactionHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
