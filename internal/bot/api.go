package bot

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tazhate/billbot/internal/domain"
	"github.com/tazhate/billbot/internal/metrics"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ReminderResponse struct {
	ID        int64  `json:"id"`
	ChatID    int64  `json:"chat_id"`
	Day       int    `json:"day"`
	Text      string `json:"text"`
	NextDue   string `json:"next_due,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type createReminderRequest struct {
	ChatID int64  `json:"chat_id"`
	Day    int    `json:"day"`
	Text   string `json:"text"`
}

// Router serves health, metrics, the Telegram webhook and, when credentials
// are configured, the reminders REST API.
func (b *Bot) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/bot", b.webhook)

	if b.cfg.APIEnabled() {
		r.Route("/api/reminders", func(r chi.Router) {
			r.Use(b.basicAuth)
			r.Get("/", b.apiListReminders)
			r.Post("/", b.apiCreateReminder)
			r.Delete("/{id}", b.apiDeleteReminder)
		})
	}
	return r
}

func (b *Bot) webhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.log.Warn().Err(err).Msg("decode webhook update")
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	go b.handleUpdate(update)
	w.WriteHeader(http.StatusOK)
}

func (b *Bot) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(username), []byte(b.cfg.APIUsername)) != 1 ||
			subtle.ConstantTimeCompare([]byte(password), []byte(b.cfg.APIPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="BillBot API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Bot) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (b *Bot) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// serviceError maps domain errors onto HTTP statuses.
func (b *Bot) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		b.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		b.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrStorageUnavailable):
		b.log.Error().Err(err).Msg("api storage error")
		b.jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		b.log.Error().Err(err).Msg("api error")
		b.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func chatIDParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("chat_id")
	if raw == "" {
		return 0, errors.New("chat_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("chat_id must be a number")
	}
	return id, nil
}

// GET /api/reminders?chat_id=
func (b *Bot) apiListReminders(w http.ResponseWriter, r *http.Request) {
	metrics.Commands.WithLabelValues("api", "list").Inc()

	chatID, err := chatIDParam(r)
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := b.reminders.List(chatID)
	if err != nil {
		b.serviceError(w, err)
		return
	}

	out := make([]ReminderResponse, 0, len(list))
	for _, rem := range list {
		out = append(out, b.reminderToResponse(rem))
	}
	b.jsonResponse(w, http.StatusOK, out)
}

// POST /api/reminders
func (b *Bot) apiCreateReminder(w http.ResponseWriter, r *http.Request) {
	metrics.Commands.WithLabelValues("api", "add").Inc()

	var req createReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		b.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ChatID == 0 {
		b.jsonError(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	rem, err := b.reminders.Add(req.ChatID, req.Day, req.Text)
	if err != nil {
		b.serviceError(w, err)
		return
	}
	b.jsonResponse(w, http.StatusCreated, b.reminderToResponse(rem))
}

// DELETE /api/reminders/{id}?chat_id=
func (b *Bot) apiDeleteReminder(w http.ResponseWriter, r *http.Request) {
	metrics.Commands.WithLabelValues("api", "remove").Inc()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		b.jsonError(w, "invalid reminder id", http.StatusBadRequest)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	removed, err := b.reminders.Remove(id, chatID)
	if err != nil {
		b.serviceError(w, err)
		return
	}
	if !removed {
		b.serviceError(w, domain.ErrNotFound)
		return
	}
	b.jsonResponse(w, http.StatusOK, map[string]int64{"removed": id})
}

func (b *Bot) reminderToResponse(r *domain.Reminder) ReminderResponse {
	resp := ReminderResponse{
		ID:     r.ID,
		ChatID: r.Recipient,
		Day:    r.DueDay,
		Text:   r.Text,
	}
	if next, err := b.reminders.NextDue(r); err == nil {
		resp.NextDue = next.Format("2006-01-02")
	}
	if !r.CreatedAt.IsZero() {
		resp.CreatedAt = r.CreatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}
