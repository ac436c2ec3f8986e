// handler.go exposes stored snapshots and on-demand refreshes over HTTP:
//   - GET  /pools/{asset}: latest stored pool snapshot
//   - GET  /users/{user}/pools/{asset}: latest stored user snapshot
//   - POST /pools/{asset}/refresh?latest=N&previous=M: refresh a pool now
//   - POST /users/{user}/pools/{asset}/refresh: refresh a user now
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/archon-research/stl/pool-state/internal/domain/entity"
	"github.com/archon-research/stl/pool-state/internal/ports/inbound"
	"github.com/archon-research/stl/pool-state/internal/ports/outbound"
	"github.com/archon-research/stl/pool-state/internal/services/pool_state"
)

// Handler implements HTTP handlers for the API.
type Handler struct {
	reader    outbound.SnapshotReader
	refresher inbound.PoolStateRefresher
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler. A nil refresher leaves the refresh
// routes unregistered.
func NewHandler(reader outbound.SnapshotReader, refresher inbound.PoolStateRefresher, logger *slog.Logger) (*Handler, error) {
	if reader == nil {
		return nil, fmt.Errorf("snapshot reader is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reader:    reader,
		refresher: refresher,
		logger:    logger.With("component", "http-handler"),
	}, nil
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /pools/{asset}", h.GetPool)
	mux.HandleFunc("GET /users/{user}/pools/{asset}", h.GetUser)
	if h.refresher != nil {
		mux.HandleFunc("POST /pools/{asset}/refresh", h.RefreshPool)
		mux.HandleFunc("POST /users/{user}/pools/{asset}/refresh", h.RefreshUser)
	}
}

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.addressParam(w, r, "asset")
	if !ok {
		return
	}
	snapshot, err := h.reader.LatestPoolSnapshot(r.Context(), asset)
	if err != nil {
		h.logger.Error("failed to read pool snapshot", "asset", asset.Hex(), "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	if snapshot == nil {
		h.respondError(w, http.StatusNotFound, "no snapshot for asset")
		return
	}
	h.respondJSON(w, http.StatusOK, outbound.NewPoolSnapshotMessage(snapshot))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.addressParam(w, r, "user")
	if !ok {
		return
	}
	asset, ok := h.addressParam(w, r, "asset")
	if !ok {
		return
	}
	snapshot, err := h.reader.LatestUserSnapshot(r.Context(), user, asset)
	if err != nil {
		h.logger.Error("failed to read user snapshot", "user", user.Hex(), "asset", asset.Hex(), "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	if snapshot == nil {
		h.respondError(w, http.StatusNotFound, "no snapshot for user")
		return
	}
	h.respondJSON(w, http.StatusOK, outbound.NewUserSnapshotMessage(snapshot))
}

// RefreshPool accepts optional latest and previous block query parameters.
func (h *Handler) RefreshPool(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.addressParam(w, r, "asset")
	if !ok {
		return
	}

	var override entity.BlockOverride
	for _, p := range []struct {
		name string
		dst  *uint64
	}{
		{"latest", &override.Latest},
		{"previous", &override.Previous},
	} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid "+p.name+" block")
			return
		}
		*p.dst = n
	}
	if override.Latest != 0 && override.Previous > override.Latest {
		h.respondError(w, http.StatusBadRequest, "previous block is after latest block")
		return
	}

	h.respondResult(w, h.refresher.RefreshPool(r.Context(), asset, override))
}

func (h *Handler) RefreshUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.addressParam(w, r, "user")
	if !ok {
		return
	}
	asset, ok := h.addressParam(w, r, "asset")
	if !ok {
		return
	}
	h.respondResult(w, h.refresher.RefreshUser(r.Context(), user, asset))
}

// respondResult maps a failed refresh to 404 for unknown assets and 502
// otherwise, since failures come from the chain node.
func (h *Handler) respondResult(w http.ResponseWriter, result entity.RefreshResult) {
	status := http.StatusOK
	if !result.Succeeded() {
		status = http.StatusBadGateway
		if errors.Is(result.Err, pool_state.ErrUnknownAsset) {
			status = http.StatusNotFound
		}
	}
	h.respondJSON(w, status, outbound.NewSnapshotMessage(uuid.NewString(), result, time.Now()))
}

func (h *Handler) addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		h.respondError(w, http.StatusBadRequest, "invalid "+name+" address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
