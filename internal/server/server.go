package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/closeshop/internal/auth"
	"github.com/dukerupert/closeshop/internal/handler"
	"github.com/dukerupert/closeshop/internal/metrics"
	"github.com/dukerupert/closeshop/internal/middleware"
	"github.com/dukerupert/closeshop/internal/push"
	"github.com/dukerupert/closeshop/internal/realtime"
	"github.com/dukerupert/closeshop/internal/store"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

// Deps are the collaborators the server does not build itself.
type Deps struct {
	Tokens       *auth.TokenIssuer
	IsAdminEmail func(string) bool
	Mailer       handler.ResetMailer
	Geocoder     handler.Geocoder
	FCM          push.Sender // nil disables FCM delivery
	WebPush      *push.WebPushService
}

type Server struct {
	db            *sql.DB
	hub           *realtime.Hub
	tokens        *auth.TokenIssuer
	authH         *handler.AuthHandler
	profileH      *handler.ProfileHandler
	notificationH *handler.NotificationHandler
	messageH      *handler.MessageHandler
	cartH         *handler.CartHandler
	shopH         *handler.ShopHandler
	pushH         *handler.PushHandler
	geocodeH      *handler.GeocodeHandler
	adminH        *handler.AdminHandler
	sessionStore  *store.SessionStore
	profileStore  *store.ProfileStore
	recoveryStore *store.RecoveryStore
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, deps Deps, logger *slog.Logger) *Server {
	hub := realtime.NewHub(logger.With("component", "realtime"))

	userStore := store.NewUserStore(db)
	profileStore := store.NewProfileStore(db)
	sessionStore := store.NewSessionStore(db)
	recoveryStore := store.NewRecoveryStore(db)
	notifStore := store.NewNotificationStore(db)
	messageStore := store.NewMessageStore(db)
	pushStore := store.NewPushStore(db)
	shopStore := store.NewShopStore(db)
	productStore := store.NewProductStore(db)
	cartStore := store.NewCartStore(db)

	var web push.WebSender
	vapidKey := ""
	if deps.WebPush.Enabled() {
		web = deps.WebPush
		vapidKey = deps.WebPush.VAPIDPublicKey()
	}
	dispatcher := push.NewDispatcher(profileStore, pushStore, deps.FCM, web, logger.With("component", "push"))

	return &Server{
		db:            db,
		hub:           hub,
		tokens:        deps.Tokens,
		authH:         handler.NewAuthHandler(userStore, profileStore, sessionStore, recoveryStore, deps.Tokens, deps.Mailer, deps.IsAdminEmail, logger.With("component", "auth")),
		profileH:      handler.NewProfileHandler(profileStore, logger.With("component", "profile")),
		notificationH: handler.NewNotificationHandler(notifStore, profileStore, hub, logger.With("component", "notification")),
		messageH:      handler.NewMessageHandler(messageStore, notifStore, profileStore, hub, dispatcher, logger.With("component", "message")),
		cartH:         handler.NewCartHandler(cartStore, productStore, logger.With("component", "cart")),
		shopH:         handler.NewShopHandler(shopStore, productStore, logger.With("component", "shop")),
		pushH:         handler.NewPushHandler(pushStore, vapidKey, logger.With("component", "push_handler")),
		geocodeH:      handler.NewGeocodeHandler(deps.Geocoder, logger.With("component", "geocode")),
		adminH:        handler.NewAdminHandler(profileStore, shopStore, productStore, messageStore, notifStore, hub, logger.With("component", "admin")),
		sessionStore:  sessionStore,
		profileStore:  profileStore,
		recoveryStore: recoveryStore,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RecoveryStore returns the recovery code store for cleanup tasks.
func (s *Server) RecoveryStore() *store.RecoveryStore {
	return s.recoveryStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the realtime hub.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("POST /auth/v1/signup", s.rateLimited(s.authH.SignUp))
	mux.HandleFunc("POST /auth/v1/token", s.rateLimited(s.authH.Token))
	mux.HandleFunc("POST /auth/v1/recover", s.rateLimited(s.authH.Recover))
	mux.HandleFunc("POST /auth/v1/verify-recovery", s.rateLimited(s.authH.VerifyRecovery))
	mux.HandleFunc("GET /api/geocode", s.geocodeH.Search)
	mux.HandleFunc("GET /api/reverse-geocode", s.geocodeH.Reverse)
	mux.HandleFunc("GET /api/reverse", s.geocodeH.Reverse)
	mux.HandleFunc("GET /push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("GET /health", handler.Health(s.db))
	mux.Handle("GET /metrics", metrics.Handler())

	s.registerProtectedRoutes(mux)
	s.registerAdminRoutes(mux)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ByIP, authRateLimit, authRateWindow)
	return rl(h).ServeHTTP
}

// Protected routes are wrapped one by one so the mux pattern stays visible
// to the request logger.
func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(s.tokens, s.sessionStore, s.profileStore)(h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(s.tokens, s.sessionStore, s.profileStore)(middleware.RequireAdmin(h))
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.Handle("POST /auth/v1/logout", s.protected(s.authH.Logout))
	mux.Handle("GET /auth/v1/user", s.protected(s.authH.User))

	mux.Handle("GET /rest/v1/profiles/{id}", s.protected(s.profileH.Get))
	mux.Handle("PATCH /rest/v1/profiles/{id}", s.protected(s.profileH.Update))

	mux.Handle("GET /rest/v1/notifications", s.protected(s.notificationH.List))
	mux.Handle("PATCH /rest/v1/notifications/{id}/read", s.protected(s.notificationH.MarkRead))

	mux.Handle("POST /rest/v1/messages", s.protected(s.messageH.Send))
	mux.Handle("GET /rest/v1/messages", s.protected(s.messageH.Conversation))

	mux.Handle("GET /rest/v1/cart_items", s.protected(s.cartH.List))
	mux.Handle("POST /rest/v1/cart_items", s.protected(s.cartH.Add))
	mux.Handle("DELETE /rest/v1/cart_items", s.protected(s.cartH.Clear))
	mux.Handle("PATCH /rest/v1/cart_items/{id}", s.protected(s.cartH.Update))
	mux.Handle("DELETE /rest/v1/cart_items/{id}", s.protected(s.cartH.Remove))

	mux.Handle("GET /rest/v1/shops", s.protected(s.shopH.ListShops))
	mux.Handle("POST /rest/v1/shops", s.protected(s.shopH.CreateShop))
	mux.Handle("GET /rest/v1/products", s.protected(s.shopH.ListProducts))
	mux.Handle("POST /rest/v1/products", s.protected(s.shopH.CreateProduct))

	mux.Handle("GET /rest/v1/push_subscriptions", s.protected(s.pushH.ListSubscriptions))
	mux.Handle("POST /rest/v1/push_subscriptions", s.protected(s.pushH.Subscribe))
	mux.Handle("DELETE /rest/v1/push_subscriptions/{id}", s.protected(s.pushH.Unsubscribe))

	mux.Handle("GET /realtime/v1/websocket", s.protected(realtime.HandleSubscribe(s.hub, s.logger.With("component", "realtime"))))
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.Handle("POST /rest/v1/notifications", s.admin(s.notificationH.Create))
	mux.Handle("GET /admin/v1/stats", s.admin(s.adminH.Stats))
	mux.Handle("GET /admin/v1/profiles", s.admin(s.profileH.ListAll))
	mux.Handle("PUT /admin/v1/profiles/{id}/role", s.admin(s.profileH.SetRole))
}
