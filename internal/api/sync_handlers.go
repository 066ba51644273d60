package api

import (
	"net/http"
	"strconv"

	"github.com/prudhvinik1/tenantsync/internal/models"
	"github.com/prudhvinik1/tenantsync/internal/syncerr"
	"go.uber.org/zap"
)

type syncHandler struct {
	svc         SyncAPI
	types       TypeLister
	validator   *validator
	connections ConnectionCounter
	presence    PresenceReader
	logger      *zap.SugaredLogger
}

func (h *syncHandler) push(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, h.validator.push)
	if err != nil {
		writeError(w, err)
		return
	}
	changes, err := parsePush(body)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Push(r.Context(), tenantFromContext(r.Context()), changes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result, http.StatusOK)
}

func (h *syncHandler) pull(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, h.validator.pull)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := parsePull(body)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Pull(r.Context(), tenantFromContext(r.Context()), req.checkpoint, req.entityTypes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result, http.StatusOK)
}

func (h *syncHandler) pullPending(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, h.validator.pullPending)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.PullPending(r.Context(), tenantFromContext(r.Context()), parsePullPending(body))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result, http.StatusOK)
}

type typesResponse struct {
	Success          bool     `json:"success"`
	EntityTypes      []string `json:"entityTypes"`
	ConflictStrategy string   `json:"conflictStrategy"`
}

func (h *syncHandler) listTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, typesResponse{
		Success:          true,
		EntityTypes:      h.types.Types(),
		ConflictStrategy: string(h.svc.Strategy()),
	}, http.StatusOK)
}

type connectionsResponse struct {
	Success  bool   `json:"success"`
	TenantID string `json:"tenantId"`
	Local    int    `json:"local"`
	// Cluster is omitted when presence tracking is not configured
	Cluster   *int64            `json:"cluster,omitempty"`
	Presences []models.Presence `json:"presences,omitempty"`
}

func (h *syncHandler) connectionsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromContext(r.Context())
	resp := connectionsResponse{
		Success:  true,
		TenantID: tenantID,
		Local:    h.connections.TenantConnectionCount(tenantID),
	}

	if h.presence != nil {
		count, err := h.presence.CountTenant(r.Context(), tenantID)
		if err != nil {
			h.logger.Warnw("Failed to count presence", "tenant", tenantID, "error", err)
			writeError(w, syncerr.Storage("count connections", err))
			return
		}
		resp.Cluster = &count

		if detailRequested(r) {
			presences, err := h.presence.ListTenant(r.Context(), tenantID)
			if err != nil {
				h.logger.Warnw("Failed to list presence", "tenant", tenantID, "error", err)
				writeError(w, syncerr.Storage("list connections", err))
				return
			}
			resp.Presences = presences
		}
	}

	writeJSON(w, resp, http.StatusOK)
}

func detailRequested(r *http.Request) bool {
	detail, _ := strconv.ParseBool(r.URL.Query().Get("detail"))
	return detail
}
