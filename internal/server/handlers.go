package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chat-backend/internal/auth"
	"chat-backend/internal/storage"
)

// chatStore is the slice of *storage.Store the HTTP surface depends on
type chatStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (storage.User, error)
	UserByUsername(ctx context.Context, username string) (storage.User, error)
	Users(ctx context.Context) ([]storage.User, error)
	Conversation(ctx context.Context, userA, userB string) ([]storage.Message, error)
}

type parsers struct {
	registerPool fastjson.ParserPool
	loginPool    fastjson.ParserPool
}

type handler struct {
	logger  *zap.SugaredLogger
	store   chatStore
	tokens  *auth.JWT
	parsers parsers
}

func writeJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	writeJSON(w, status, payload)
}

// sessionResponse is returned by both register and login
type sessionResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// healthz handles HTTP requests on "/healthz" endpoint
func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	payload, _ := json.Marshal(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, payload)
}

// register handles HTTP requests on "/auth/register" endpoint
func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.registerPool.Get()
	defer h.parsers.registerPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, password, ok := credentials(w, v)
	if !ok {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error(err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	u, err := h.store.CreateUser(r.Context(), username, string(hash))
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			writeError(w, http.StatusBadRequest, "User already exists")
			return
		}
		h.logger.Error(err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	token, err := h.tokens.Issue(u.ID, u.Username)
	if err != nil {
		h.logger.Error(err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	payload, _ := json.Marshal(sessionResponse{ID: u.ID, Username: u.Username, Token: token})
	writeJSON(w, http.StatusCreated, payload)
}

// login handles HTTP requests on "/auth/login" endpoint
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.loginPool.Get()
	defer h.parsers.loginPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, password, ok := credentials(w, v)
	if !ok {
		return
	}

	u, err := h.store.UserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		h.logger.Error(err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := h.tokens.Issue(u.ID, u.Username)
	if err != nil {
		h.logger.Error(err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	payload, _ := json.Marshal(sessionResponse{ID: u.ID, Username: u.Username, Token: token})
	writeJSON(w, http.StatusOK, payload)
}

// credentials extracts and validates username/password fields from a parsed body
func credentials(w http.ResponseWriter, v *fastjson.Value) (string, string, bool) {
	if v == nil || !v.Exists("username") {
		writeError(w, http.StatusBadRequest, "Missing Field \"username\"")
		return "", "", false
	}

	username := strings.TrimSpace(string(v.GetStringBytes("username")))
	if len(username) == 0 {
		writeError(w, http.StatusBadRequest, "Field \"username\" must be a string and have non-zero length")
		return "", "", false
	}

	if !v.Exists("password") {
		writeError(w, http.StatusBadRequest, "Missing Field \"password\"")
		return "", "", false
	}

	password := string(v.GetStringBytes("password"))
	if len(password) < 6 {
		writeError(w, http.StatusBadRequest, "Field \"password\" must be a string of at least 6 characters")
		return "", "", false
	}

	return username, password, true
}

// listUsers handles HTTP requests on "/users" endpoint
func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		return
	}

	users, err := h.store.Users(r.Context())
	if err != nil {
		h.logger.Error(err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}

	// a contact list never includes the requester
	if claims, ok := claimsFromContext(r.Context()); ok {
		filtered := users[:0]
		for _, u := range users {
			if u.ID != claims.UserID {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}

	payload, err := json.Marshal(users)
	if err != nil {
		h.logger.Error(err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

// conversation handles HTTP requests on "/conversation/{userA}/{userB}" endpoint
func (h *handler) conversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/conversation/"), "/")
	if len(parts) != 2 {
		writeError(w, http.StatusBadRequest, "Invalid user IDs")
		return
	}

	userA, userB := parts[0], parts[1]
	if _, err := xid.FromString(userA); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user IDs")
		return
	}
	if _, err := xid.FromString(userB); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user IDs")
		return
	}

	messages, err := h.store.Conversation(r.Context(), userA, userB)
	if err != nil {
		h.logger.Error(err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		h.logger.Error(err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, payload)
}
