package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"kynara/internal/config"
	"kynara/internal/domain"
	"kynara/internal/metrics"
	"kynara/internal/storefront"
)

type contextKey string

const contextKeySessionEmail contextKey = "session_email"

type Server struct {
	cfg      config.Config
	app      *storefront.App
	recorder metrics.Recorder
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	limiter  *ipLimiter
}

func NewServer(
	cfg config.Config,
	app *storefront.App,
	recorder metrics.Recorder,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Server {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		app:      app,
		recorder: recorder,
		gatherer: gatherer,
		logger:   logger,
		limiter:  newIPLimiter(cfg.LoginRatePerMin),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer))
	}

	r.Get("/products", s.handleProducts)
	r.Get("/state", s.handleState)
	r.Get("/notifications", s.handleNotifications)
	r.Post("/navigation/signup", s.handleShowSignup)
	r.Post("/navigation/login", s.handleShowLogin)
	r.Post("/session/restore", s.handleRestore)

	r.Group(func(auth chi.Router) {
		auth.Use(s.limiter.middleware)
		auth.Post("/signup", s.handleSignup)
		auth.Post("/login", s.handleLogin)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(s.requireSession)
		protected.Post("/logout", s.handleLogout)
		protected.Post("/cart/items", s.handleAddToCart)
		protected.Patch("/cart/items/{productID}", s.handleUpdateQuantity)
		protected.Delete("/cart/items/{productID}", s.handleRemoveFromCart)
		protected.Post("/checkout", s.handleBeginCheckout)
		protected.Post("/checkout/cancel", s.handleBackToShop)
		protected.Post("/checkout/pay", s.handlePay)
		protected.Get("/orders", s.handleOrders)
		protected.Post("/navigation/orders", s.handleShowOrders)
		protected.Post("/navigation/shop", s.handleBackToShop)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": s.app.Products()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 10)
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": s.app.Notifications(limit)})
}

func (s *Server) handleShowSignup(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, s.app.ShowSignup())
}

func (s *Server) handleShowLogin(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, s.app.ShowLogin())
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.app.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.respondSession(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.respondSession(w, http.StatusOK, sess)
}

// handleRestore hands a token to a client for the session restored at boot.
// The persisted marker is trusted as is.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.app.CurrentSession()
	if !ok {
		writeDomainError(w, domain.ErrNoActiveSession)
		return
	}
	s.respondSession(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Logout(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	line, err := s.app.AddToCart(req.ProductID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (s *Server) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondState(w, s.app.UpdateQuantity(chi.URLParam(r, "productID"), req.Quantity))
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, s.app.RemoveFromCart(chi.URLParam(r, "productID")))
}

func (s *Server) handleBeginCheckout(w http.ResponseWriter, r *http.Request) {
	if _, err := s.app.BeginCheckout(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := s.app.Pay(r.Context(), req.PaymentMethod)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders":        s.app.Orders(),
		"active_orders": s.app.State().ActiveOrders,
	})
}

func (s *Server) handleShowOrders(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, s.app.ShowOrders())
}

func (s *Server) handleBackToShop(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, s.app.BackToShop())
}

func (s *Server) respondState(w http.ResponseWriter, err error) {
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Server) respondSession(w http.ResponseWriter, status int, sess domain.Session) {
	token, expiresAt, err := s.signSessionToken(sess.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, status, map[string]interface{}{
		"session":    sess,
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

func (s *Server) signSessionToken(email string) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(s.cfg.SessionTokenTTL)
	claims := jwt.MapClaims{
		"sub": email,
		"exp": expiresAt.Unix(),
		"iat": time.Now().UTC().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// requireSession accepts tokens whose subject is the active session's email.
// Tokens outlive logout, so the subject is checked on every request.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		sub, err := parsed.Claims.GetSubject()
		if err != nil || sub == "" {
			writeError(w, http.StatusUnauthorized, "invalid session claims")
			return
		}
		current, ok := s.app.CurrentSession()
		if !ok || current.Email != sub {
			writeError(w, http.StatusUnauthorized, "session is no longer active")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeySessionEmail, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrNoActiveSession):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrDuplicateEmail), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyCartCheckout):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrMissingFields), errors.Is(err, domain.ErrUnknownPaymentMethod):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownProduct):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := storefront.Message(err)
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func decodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
