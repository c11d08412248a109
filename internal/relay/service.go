package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Service is the relay endpoint. It accepts JSON messages and forwards them
// to a Mailer.
type Service struct {
	mailer      Mailer
	defaultFrom string
}

// NewService returns a relay for domain. Messages without a from address are
// sent as "<company> <sales@domain>".
func NewService(mailer Mailer, company, domain string) *Service {
	return &Service{
		mailer:      mailer,
		defaultFrom: fmt.Sprintf("%s <sales@%s>", company, domain),
	}
}

// Handler returns the relay's HTTP handler.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(cors)

	// The relay has a single endpoint, so the path is not significant.
	for _, pattern := range []string{"/", "/*"} {
		r.Options(pattern, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Post(pattern, s.handleSend)
	}
	r.MethodNotAllowed(methodNotAllowed)
	r.NotFound(methodNotAllowed)
	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
}

// inbound mirrors Message but accepts any JSON body.
type inbound struct {
	To      string          `json:"to"`
	Subject string          `json:"subject"`
	Body    json.RawMessage `json:"body"`
	From    string          `json:"from"`
}

func (s *Service) handleSend(w http.ResponseWriter, r *http.Request) {
	var in inbound
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusInternalServerError, response{Error: err.Error()})
		return
	}

	body, err := bodyText(in.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, response{Error: err.Error()})
		return
	}
	if in.To == "" || in.Subject == "" || body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing required fields: to, subject, body"})
		return
	}

	from := in.From
	if from == "" {
		from = s.defaultFrom
	}

	id := w.Header().Get(requestIDHeader)
	if err := s.mailer.Deliver(r.Context(), from, in.To, in.Subject, body); err != nil {
		log.Printf("relay %s: provider error: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, response{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, response{Success: true, ID: id})
}

// bodyText returns a string body as-is and re-encodes anything else as
// indented JSON. Empty, null and false bodies count as missing.
func bodyText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch b := v.(type) {
	case nil:
		return "", nil
	case string:
		return b, nil
	case bool:
		if !b {
			return "", nil
		}
	case float64:
		if b == 0 {
			return "", nil
		}
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("relay: encode response: %v", err)
	}
}
