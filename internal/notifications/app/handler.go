package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/crewsite/notifications/internal/notifications/domain"
	"github.com/crewsite/notifications/internal/notifications/fanout"
	"github.com/crewsite/notifications/internal/notifications/service"
	"github.com/crewsite/notifications/internal/notifications/storage"
)

// Handler serves the notification JSON API and the websocket endpoint.
type Handler struct {
	service  *service.Service
	notifier *fanout.Notifier
	ws       http.Handler
	logger   *log.Logger
}

// NewHandler wires the notification routes.
func NewHandler(svc *service.Service, notifier *fanout.Notifier, ws http.Handler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	handler := &Handler{service: svc, notifier: notifier, ws: ws, logger: logger}
	return handler.routes()
}

func (h *Handler) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if h.ws != nil {
		mux.Handle("/ws", h.ws)
	}
	mux.Handle("/api/notifications", http.HandlerFunc(h.handleNotifications))
	mux.Handle("/api/notifications/project", http.HandlerFunc(h.handleNotifyProject))
	mux.Handle("/api/notifications/role", http.HandlerFunc(h.handleNotifyRole))
	mux.Handle("/api/notifications/critical", http.HandlerFunc(h.handleNotifyCritical))
	mux.Handle("/api/notifications/summary", http.HandlerFunc(h.handleSummary))
	mux.Handle("/api/notifications/read", http.HandlerFunc(h.handleMarkRead))
	mux.Handle("/api/notifications/read-many", http.HandlerFunc(h.handleMarkManyRead))
	mux.Handle("/api/notifications/clean", http.HandlerFunc(h.handleClean))
	mux.Handle("/api/preferences", http.HandlerFunc(h.handlePreferences))
	mux.Handle("/api/preferences/defaults", http.HandlerFunc(h.handlePreferenceDefaults))
	mux.Handle("/api/preferences/reset", http.HandlerFunc(h.handlePreferenceReset))
	mux.Handle("/api/digest", http.HandlerFunc(h.handleDigest))
	mux.Handle("/api/deliveries/stats", http.HandlerFunc(h.handleDeliveryStats))
	return mux
}

type createRequest struct {
	UserID     string            `json:"user_id"`
	Type       string            `json:"type"`
	Category   string            `json:"category"`
	Priority   string            `json:"priority"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	ActionURL  string            `json:"action_url"`
	ProjectID  string            `json:"project_id"`
	EntityID   string            `json:"entity_id"`
	EntityType string            `json:"entity_type"`
	Metadata   map[string]string `json:"metadata"`
}

func (r createRequest) event() fanout.Event {
	return fanout.Event{
		Type:       domain.NormalizeType(r.Type),
		Category:   domain.NormalizeCategory(r.Category),
		Priority:   domain.NormalizePriority(r.Priority),
		Title:      r.Title,
		Body:       r.Body,
		ActionURL:  r.ActionURL,
		ProjectID:  r.ProjectID,
		EntityID:   r.EntityID,
		EntityType: r.EntityType,
		Metadata:   r.Metadata,
	}
}

type notificationView struct {
	ID               int64             `json:"id"`
	UserID           string            `json:"user_id"`
	Type             string            `json:"type"`
	Category         string            `json:"category"`
	Priority         string            `json:"priority"`
	Title            string            `json:"title"`
	Body             string            `json:"body,omitempty"`
	ActionURL        string            `json:"action_url,omitempty"`
	ActionLabel      string            `json:"action_label,omitempty"`
	Icon             string            `json:"icon,omitempty"`
	RelatedProjectID string            `json:"related_project_id,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	IsRead           bool              `json:"is_read"`
	ReadAt           string            `json:"read_at,omitempty"`
	CreatedAt        string            `json:"created_at"`
}

func viewOf(notification domain.Notification) notificationView {
	view := notificationView{
		ID:               notification.ID,
		UserID:           notification.UserID,
		Type:             string(notification.Type),
		Category:         string(notification.Category),
		Priority:         string(notification.Priority),
		Title:            notification.Content.Title,
		Body:             notification.Content.Body,
		ActionURL:        notification.Content.ActionURL,
		ActionLabel:      notification.Content.ActionLabel,
		Icon:             notification.Content.Icon,
		RelatedProjectID: notification.RelatedProjectID,
		Metadata:         notification.Metadata,
		IsRead:           notification.IsRead,
		CreatedAt:        notification.CreatedAt.UTC().Format(timeLayout),
	}
	if notification.ReadAt != nil {
		view.ReadAt = notification.ReadAt.UTC().Format(timeLayout)
	}
	return view
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func viewsOf(notifications []domain.Notification) []notificationView {
	views := make([]notificationView, 0, len(notifications))
	for _, notification := range notifications {
		views = append(views, viewOf(notification))
	}
	return views
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleNotifyUser(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleNotifyUser(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	notification, err := h.notifier.NotifyUser(r.Context(), req.UserID, req.event())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, viewOf(notification))
}

func (h *Handler) handleNotifyProject(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	notifications, err := h.notifier.NotifyProject(r.Context(), req.ProjectID, req.event())
	if err != nil && len(notifications) == 0 {
		h.writeError(w, err)
		return
	}
	if err != nil {
		h.logger.Printf("partial project fan-out for %s: %v", req.ProjectID, err)
	}
	h.writeJSON(w, http.StatusCreated, viewsOf(notifications))
}

type roleRequest struct {
	createRequest
	Role string `json:"role"`
}

func (h *Handler) handleNotifyRole(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	notifications, err := h.notifier.NotifyRole(r.Context(), req.Role, req.event())
	if err != nil && len(notifications) == 0 {
		h.writeError(w, err)
		return
	}
	if err != nil {
		h.logger.Printf("partial role fan-out for %s: %v", req.Role, err)
	}
	h.writeJSON(w, http.StatusCreated, viewsOf(notifications))
}

type criticalRequest struct {
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	ProjectID string `json:"project_id"`
	ActionURL string `json:"action_url"`
}

func (h *Handler) handleNotifyCritical(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req criticalRequest
	if !h.decode(w, r, &req) {
		return
	}
	notification, err := h.notifier.NotifyCritical(r.Context(), req.UserID, req.Title, req.Body, req.ProjectID, req.ActionURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, viewOf(notification))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	input := storage.ListInput{
		UserID:   query.Get("user_id"),
		Page:     intParam(query.Get("page")),
		PageSize: intParam(query.Get("page_size")),
	}
	if raw := strings.TrimSpace(query.Get("is_read")); raw != "" {
		isRead := raw == "true" || raw == "1"
		input.Filter.IsRead = &isRead
	}
	if raw := strings.TrimSpace(query.Get("category")); raw != "" {
		category := domain.NormalizeCategory(raw)
		input.Filter.Category = &category
	}
	if raw := strings.TrimSpace(query.Get("project_id")); raw != "" {
		input.Filter.ProjectID = &raw
	}

	notifications, err := h.service.List(r.Context(), input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewsOf(notifications))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	summary, err := h.service.Summary(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	byCategory := make(map[string]int, len(summary.UnreadByCategory))
	for category, count := range summary.UnreadByCategory {
		byCategory[string(category)] = count
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"total_unread":       summary.TotalUnread,
		"unread_by_category": byCategory,
	})
}

type markReadRequest struct {
	UserID string  `json:"user_id"`
	ID     int64   `json:"id"`
	IDs    []int64 `json:"ids"`
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req markReadRequest
	if !h.decode(w, r, &req) {
		return
	}
	notification, err := h.service.MarkAsRead(r.Context(), req.ID, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(notification))
}

func (h *Handler) handleMarkManyRead(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req markReadRequest
	if !h.decode(w, r, &req) {
		return
	}
	changed, err := h.service.BulkMarkAsRead(r.Context(), req.IDs, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"updated": changed})
}

type cleanRequest struct {
	UserID string `json:"user_id"`
	// DaysOld overrides the retention window; zero keeps the default.
	DaysOld int `json:"days_old"`
}

func (h *Handler) handleClean(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req cleanRequest
	if !h.decode(w, r, &req) {
		return
	}
	deleted, err := h.service.CleanOld(r.Context(), req.UserID, time.Duration(req.DaysOld)*24*time.Hour)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

type preferenceView struct {
	UserID          string `json:"user_id"`
	Category        string `json:"category"`
	InAppEnabled    bool   `json:"in_app_enabled"`
	EmailEnabled    bool   `json:"email_enabled"`
	MinimumPriority string `json:"minimum_priority"`
}

func (h *Handler) handlePreferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		preferences, err := h.service.GetPreferences(r.Context(), r.URL.Query().Get("user_id"))
		if err != nil {
			h.writeError(w, err)
			return
		}
		views := make([]preferenceView, 0, len(preferences))
		for _, preference := range preferences {
			views = append(views, preferenceView{
				UserID:          preference.UserID,
				Category:        string(preference.Category),
				InAppEnabled:    preference.InAppEnabled,
				EmailEnabled:    preference.EmailEnabled,
				MinimumPriority: string(preference.MinimumPriority),
			})
		}
		h.writeJSON(w, http.StatusOK, views)
	case http.MethodPost, http.MethodPut:
		var view preferenceView
		if !h.decode(w, r, &view) {
			return
		}
		err := h.service.UpdatePreference(r.Context(), domain.Preference{
			UserID:          view.UserID,
			Category:        domain.NormalizeCategory(view.Category),
			InAppEnabled:    view.InAppEnabled,
			EmailEnabled:    view.EmailEnabled,
			MinimumPriority: domain.NormalizePriority(view.MinimumPriority),
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, POST, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePreferenceDefaults(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req cleanRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.EnsureDefaultPreferences(r.Context(), req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePreferenceReset(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req cleanRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ResetPreferences(r.Context(), req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDigest(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req cleanRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SendUnreadDigest(r.Context(), req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeliveryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.service.DeliveryStats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{
		"pending":  stats.Pending,
		"sent":     stats.Sent,
		"failed":   stats.Failed,
		"retrying": stats.Retrying,
	})
}

func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Printf("encode response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "notification not found", http.StatusNotFound)
	case errors.Is(err, service.ErrUserIDRequired),
		errors.Is(err, domain.ErrUserIDRequired),
		errors.Is(err, domain.ErrTitleRequired),
		errors.Is(err, domain.ErrInvalidValue),
		errors.Is(err, fanout.ErrProjectIDRequired),
		errors.Is(err, fanout.ErrRoleRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, fanout.ErrNoRecipients):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Printf("internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func intParam(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}
