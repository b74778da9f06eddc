// transport/http содержит JSON-эндпоинты auth-сервиса.
// Здесь выполняется только маппинг данных и ошибок доменного слоя (service)
// в HTTP. Вся валидация и бизнес-логика находятся в пакете service.
//
// Принципы:
//   - Контекст запроса прокидывается в сервис без потерь;
//   - Ошибки сервиса явно транслируются в статусы:
//   - ErrInvalidEmail/ErrWeakPassword/ErrEmptyPassword -> 400;
//   - ErrEmailTaken -> 409;
//   - ErrInvalidCredentials/ErrInvalidToken/ErrSessionRevoked -> 401;
//   - иные ошибки -> 500 с единым безопасным сообщением;
//   - Validate при невалидном токене НЕ возвращает ошибку, а отдаёт
//     {"valid": false} (контракт эндпоинта).
//
// Безопасность:
//   - Для 500 наружу не утекают детали внутренних ошибок; подробности
//     попадают в логи через middleware на уровне сервера.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ryanpereira49/RyAuth/internal/pkg/log"
	"github.com/ryanpereira49/RyAuth/internal/service"
)

// Server — HTTP-обёртка сервисного слоя.
type Server struct {
	service *service.Service
}

// NewServer создаёт HTTP-сервер авторизации поверх сервисного слоя.
func NewServer(service *service.Service) *Server {
	return &Server{service: service}
}

// Routes регистрирует эндпоинты на mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /v1/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /v1/auth/logout", s.handleLogout)
	mux.HandleFunc("POST /v1/auth/validate", s.handleValidate)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type accessTokenRequest struct {
	AccessToken string `json:"access_token"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
}

type authResponse struct {
	UserID          string `json:"user_id"`
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	AccessExpiresAt int64  `json:"access_expires_at"`
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleRegister регистрирует пользователя и возвращает его ID.
// Токены при регистрации не выдаются: клиент проходит обычный вход.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	uid, err := s.service.RegisterUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{UserID: uid.String()})
}

// handleLogin аутентифицирует пользователя и возвращает пару токенов.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, uid, err := s.service.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID:          uid.String(),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
	})
}

// handleRefresh обменивает живой refresh-токен на новую пару.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, uid, err := s.service.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID:          uid.String(),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
	})
}

// handleLogout отзывает refresh-токен. Идемпотентен: повторный logout
// и logout неизвестного токена отвечают так же, как первый.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.service.RevokeToken(r.Context(), req.RefreshToken); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleValidate проверяет access-токен. Невалидный токен — не ошибка
// запроса: ответ 200 {"valid": false}.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req accessTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	uid, role, err := s.service.ValidateToken(r.Context(), req.AccessToken)
	if err != nil {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false})
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{Valid: true, UserID: uid.String(), Role: role})
}

// writeServiceError транслирует ошибку доменного слоя в HTTP-статус.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	// Ошибки валидации безопасно показывать дословно: они называют
	// нарушенное правило и не раскрывают ни секретов, ни наличия аккаунта.
	case errors.Is(err, service.ErrInvalidEmail):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: service.ErrInvalidEmail.Error()})

	case errors.Is(err, service.ErrWeakPassword):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: service.ErrWeakPassword.Error()})

	case errors.Is(err, service.ErrEmptyPassword):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: service.ErrEmptyPassword.Error()})

	case errors.Is(err, service.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, errorResponse{Error: service.ErrEmailTaken.Error()})

	case errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: service.ErrInvalidCredentials.Error()})

	case errors.Is(err, service.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: service.ErrInvalidToken.Error()})

	case errors.Is(err, service.ErrSessionRevoked):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: service.ErrSessionRevoked.Error()})

	default:
		log.From(r.Context()).Error("internal error",
			slog.String("path", r.URL.Path),
			slog.String("err", err.Error()),
		)

		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
