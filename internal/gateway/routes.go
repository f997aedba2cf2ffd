package gateway

import "net/http"

// registerRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	// Platform webhook, guarded by the shared webhook secret.
	mux.HandleFunc("POST /webhooks/wa", s.requireWebhook(s.handleWebhook))

	// Live event feed for the dashboard.
	mux.HandleFunc("GET /events", s.requireAdmin(s.handleEvents))

	// Admin API.
	mux.HandleFunc("GET /api/rules/contacts", s.requireAdmin(s.handleListContactRules))
	mux.HandleFunc("POST /api/rules/contacts", s.requireAdmin(s.handleSetContactRule))
	mux.HandleFunc("DELETE /api/rules/contacts/{number}", s.requireAdmin(s.handleDeleteContactRule))
	mux.HandleFunc("GET /api/rules/conversations", s.requireAdmin(s.handleListConversationRules))
	mux.HandleFunc("POST /api/rules/conversations", s.requireAdmin(s.handleSetConversationRule))
	mux.HandleFunc("DELETE /api/rules/conversations", s.requireAdmin(s.handleDeleteConversationRule))
	mux.HandleFunc("GET /api/faq", s.requireAdmin(s.handleListFaqs))
	mux.HandleFunc("POST /api/faq", s.requireAdmin(s.handleCreateFaq))
	mux.HandleFunc("DELETE /api/faq/{id}", s.requireAdmin(s.handleDeleteFaq))
	mux.HandleFunc("GET /api/playbooks", s.requireAdmin(s.handleListPlaybooks))
	mux.HandleFunc("POST /api/playbooks", s.requireAdmin(s.handleCreatePlaybook))
	mux.HandleFunc("DELETE /api/playbooks/{id}", s.requireAdmin(s.handleDeletePlaybook))
	mux.HandleFunc("GET /api/decisions", s.requireAdmin(s.handleListDecisions))
	mux.HandleFunc("GET /api/settings", s.requireAdmin(s.handleGetSettings))
	mux.HandleFunc("PUT /api/settings", s.requireAdmin(s.handlePutSettings))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// requireWebhook guards a handler with the webhook shared secret.
func (s *Server) requireWebhook(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !webhookAuthorized(r, s.cfg.WebhookSecret) {
			s.log.Warn().Str("remote", r.RemoteAddr).Msg("webhook auth failed")
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// requireAdmin guards a handler with the admin token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !adminAuthorized(r, s.cfg.AdminToken) {
			s.log.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("admin auth failed")
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}
