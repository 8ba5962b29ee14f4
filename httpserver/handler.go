package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sessionwallet/provisioning-backend/interfaces"
	"github.com/sessionwallet/provisioning-backend/passkey"
	"github.com/sessionwallet/provisioning-backend/provisioner"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Provisioner is the part of the orchestrator the gateway needs.
type Provisioner interface {
	Register(ctx context.Context, req provisioner.RegisterRequest) (*provisioner.Result, error)
	Login(ctx context.Context, req provisioner.LoginRequest) (*provisioner.Result, error)
	Logout(ctx context.Context, origin interfaces.Origin) error
	CurrentSession(ctx context.Context, origin interfaces.Origin) (*interfaces.LocalSession, error)
}

// Handler processes HTTP requests for the account gateway. Registration and
// login block while the passkey ceremony is relayed to the calling UI through
// the challenge/response endpoints.
type Handler struct {
	provisioner Provisioner
	relay       *passkey.RelayAuthenticator
	log         *slog.Logger
}

// NewHandler creates a new HTTP request handler. relay may be nil when the
// credential provider does not use the HTTP ceremony relay.
func NewHandler(p Provisioner, relay *passkey.RelayAuthenticator, log *slog.Logger) *Handler {
	return &Handler{
		provisioner: p,
		relay:       relay,
		log:         log,
	}
}

type registerRequest struct {
	Username string            `json:"username"`
	ChainID  interfaces.ChainID `json:"chainId"`
}

type accountResponse struct {
	Username string `json:"username"`
	Address  string `json:"address"`
	ChainID  uint64 `json:"chainId"`
	FlowID   string `json:"flowId"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	State string `json:"state,omitempty"`

	// Address is set when the account was deployed but the flow failed
	// afterwards, so the UI can tell the user the account exists unfunded.
	Address string `json:"address,omitempty"`
}

// HandleRegister provisions a new account.
//
// URL format: POST /api/accounts/register
// Request body: JSON {"username": "...", "chainId": 260}
//
// The call blocks until the passkey ceremony has been completed through the
// challenge/response endpoints and the account is deployed, funded, and
// committed. The origin is taken from the Origin header.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.provisioner.Register(r.Context(), provisioner.RegisterRequest{
		Origin:   requestOrigin(r),
		Username: req.Username,
		ChainID:  req.ChainID,
	})
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{
		Username: result.Session.Username,
		Address:  result.Session.Address.Hex(),
		ChainID:  uint64(result.Account.ChainID),
		FlowID:   result.FlowID,
	})
}

// HandleLogin authenticates an existing account with a passkey assertion and
// replaces the local session.
//
// URL format: POST /api/accounts/login
// Request body: JSON {"username": "...", "chainId": 260}
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.provisioner.Login(r.Context(), provisioner.LoginRequest{
		Origin:   requestOrigin(r),
		Username: req.Username,
		ChainID:  req.ChainID,
	})
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		Username: result.Session.Username,
		Address:  result.Session.Address.Hex(),
		ChainID:  uint64(req.ChainID),
		FlowID:   result.FlowID,
	})
}

// HandleLogout clears the session for the calling origin.
//
// URL format: POST /api/session/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.provisioner.Logout(r.Context(), requestOrigin(r)); err != nil {
		h.log.Error("Logout failed", "err", err)
		http.Error(w, "Logout failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// HandleSession returns the active session for the calling origin.
//
// URL format: GET /api/session
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.provisioner.CurrentSession(r.Context(), requestOrigin(r))
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no active session"})
			return
		}
		h.log.Error("Session lookup failed", "err", err)
		http.Error(w, "Session lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type challengeResponse struct {
	Kind    passkey.CeremonyKind `json:"kind"`
	Options any                  `json:"options"`
}

// HandleChallenge returns the passkey ceremony options pending for a
// username, or 404 when the flow has not reached the authenticator step yet.
// The UI polls this while a register or login call is blocked.
//
// URL format: GET /api/passkey/challenge/{username}
func (h *Handler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		http.Error(w, "Passkey relay not enabled", http.StatusNotFound)
		return
	}

	username := r.PathValue("username")
	if username == "" {
		http.Error(w, "Missing username in URL", http.StatusBadRequest)
		return
	}

	kind, options, err := h.relay.Challenge(username)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{Kind: kind, Options: options})
}

// HandleCeremonyResponse delivers the authenticator's response for a pending
// ceremony and unblocks the waiting flow.
//
// URL format: POST /api/passkey/response/{username}
// Request body: the raw WebAuthn response JSON produced by the browser.
func (h *Handler) HandleCeremonyResponse(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		http.Error(w, "Passkey relay not enabled", http.StatusNotFound)
		return
	}

	username := r.PathValue("username")
	if username == "" {
		http.Error(w, "Missing username in URL", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "Empty authenticator response", http.StatusBadRequest)
		return
	}

	if err := h.relay.Respond(username, body); err != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// writeFlowError maps the failure kinds to HTTP statuses and renders the
// structured error body, including the deployed address on post-deployment
// failures.
func (h *Handler) writeFlowError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var flowErr *provisioner.FlowError
	if errors.As(err, &flowErr) {
		resp.Kind = flowErr.Kind.Error()
		resp.State = string(flowErr.State)
		if flowErr.Address != nil {
			resp.Address = flowErr.Address.Hex()
		}
	}

	writeJSON(w, statusForError(err), resp)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrInvalidUsername),
		errors.Is(err, interfaces.ErrUnsupportedChain),
		errors.Is(err, interfaces.ErrChainNotProvisionable):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrProvisioningInFlight):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrDirectoryUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, interfaces.ErrCredentialCreation),
		errors.Is(err, interfaces.ErrCredentialAssertion):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// requestOrigin identifies the calling application. Browsers always send the
// Origin header on cross-origin fetches; a missing header falls back to a
// shared default so CLI clients still work.
func requestOrigin(r *http.Request) interfaces.Origin {
	if origin := r.Header.Get("Origin"); origin != "" {
		return interfaces.Origin(origin)
	}
	return interfaces.Origin("default")
}

func decodeJSONBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
