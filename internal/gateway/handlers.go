package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/ingest"
	"github.com/bajo34/wa-pro/internal/store"
	"github.com/bajo34/wa-pro/internal/version"
)

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     version.Version,
		Subscribers: s.hub.Count(),
	})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// handleWebhook screens one platform delivery. The reply happens
// asynchronously; the response only says whether the payload passed
// the ingestion gate.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload ingest.Payload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	res := s.pipeline.HandleWebhook(payload)
	respondJSON(w, http.StatusOK, map[string]any{
		"accepted": res.Accepted,
		"reason":   res.Reason,
	})
}

// Rule management

type contactRuleRequest struct {
	Number string `json:"number"`
	Mode   string `json:"botMode"`
	Notes  string `json:"notes,omitempty"`
}

type conversationRuleRequest struct {
	Instance  string `json:"instance"`
	RemoteJid string `json:"remoteJid"`
	Mode      string `json:"botMode"`
	Notes     string `json:"notes,omitempty"`
}

func parseMode(raw string) (domain.BotMode, bool) {
	switch domain.BotMode(raw) {
	case domain.ModeOn, domain.ModeOff, domain.ModeHumanOnly:
		return domain.BotMode(raw), true
	}
	return "", false
}

func (s *Server) handleListContactRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListContactRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

func (s *Server) handleSetContactRule(w http.ResponseWriter, r *http.Request) {
	var req contactRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Number == "" {
		respondError(w, http.StatusBadRequest, "number is required")
		return
	}
	mode, ok := parseMode(req.Mode)
	if !ok {
		respondError(w, http.StatusBadRequest, "botMode must be ON, OFF or HUMAN_ONLY")
		return
	}
	if err := s.rules.SetContactRule(req.Number, mode, req.Notes); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"number": req.Number, "botMode": string(mode)})
}

func (s *Server) handleDeleteContactRule(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	if err := s.rules.DeleteContactRule(number); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": number})
}

func (s *Server) handleListConversationRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListConversationRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

func (s *Server) handleSetConversationRule(w http.ResponseWriter, r *http.Request) {
	var req conversationRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Instance == "" || req.RemoteJid == "" {
		respondError(w, http.StatusBadRequest, "instance and remoteJid are required")
		return
	}
	mode, ok := parseMode(req.Mode)
	if !ok {
		respondError(w, http.StatusBadRequest, "botMode must be ON, OFF or HUMAN_ONLY")
		return
	}
	key := domain.Key{Instance: req.Instance, RemoteJid: req.RemoteJid}
	if err := s.rules.SetConversationRule(key, mode, req.Notes); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"conversation": key.String(), "botMode": string(mode)})
}

func (s *Server) handleDeleteConversationRule(w http.ResponseWriter, r *http.Request) {
	key := domain.Key{
		Instance:  r.URL.Query().Get("instance"),
		RemoteJid: r.URL.Query().Get("remoteJid"),
	}
	if key.Instance == "" || key.RemoteJid == "" {
		respondError(w, http.StatusBadRequest, "instance and remoteJid are required")
		return
	}
	if err := s.rules.DeleteConversationRule(key); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": key.String()})
}

// FAQ and playbook management

func (s *Server) handleListFaqs(w http.ResponseWriter, r *http.Request) {
	faqs, err := s.intel.ListFaqs()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, faqs)
}

func (s *Server) handleCreateFaq(w http.ResponseWriter, r *http.Request) {
	var faq store.Faq
	if err := json.NewDecoder(r.Body).Decode(&faq); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(faq.Triggers) == 0 || faq.Answer == "" {
		respondError(w, http.StatusBadRequest, "triggers and answer are required")
		return
	}
	id, err := s.intel.CreateFaq(faq)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	faq.ID = id
	respondJSON(w, http.StatusCreated, faq)
}

func (s *Server) handleDeleteFaq(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.intel.DeleteFaq(id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (s *Server) handleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	pbs, err := s.intel.ListPlaybooks()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, pbs)
}

func (s *Server) handleCreatePlaybook(w http.ResponseWriter, r *http.Request) {
	var pb store.Playbook
	if err := json.NewDecoder(r.Body).Decode(&pb); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if pb.Intent == "" || len(pb.Triggers) == 0 || pb.Template == "" {
		respondError(w, http.StatusBadRequest, "intent, triggers and template are required")
		return
	}
	id, err := s.intel.CreatePlaybook(pb)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pb.ID = id
	respondJSON(w, http.StatusCreated, pb)
}

func (s *Server) handleDeletePlaybook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.intel.DeletePlaybook(id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

// Decisions and settings

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	decisions, err := s.intel.ListDecisions(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, decisions)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.intel.GetSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings map[string]any
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.intel.PutSettings(settings); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
