package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"galley/api/internal/catalog"
	"galley/api/internal/docstore"
	"galley/api/internal/order"
	"galley/api/internal/search"
	"galley/api/internal/sheets"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	adminToken string
}

func NewHTTPServer(service *Service, corsOrigin, adminToken string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, adminToken: adminToken}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"kv": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["kv"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/restaurants" {
		restaurants, version, err := s.service.ListRestaurants(r.Context(), false)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"restaurants": restaurants, "version": version})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/orders/link" {
		var cart order.Cart
		if err := decodeBody(r, &cart); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.OrderLink(cart)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "restaurants" && r.Method == http.MethodGet {
		restaurant, err := s.service.GetRestaurant(r.Context(), parts[2], false)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"restaurant": restaurant})
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "admin" {
		if !s.requireAdmin(w, r) {
			return
		}
		s.handleAdmin(w, r, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	filterType := strings.TrimSpace(r.URL.Query().Get("type"))
	restaurantID := strings.TrimSpace(r.URL.Query().Get("restaurantId"))

	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
			return
		}
		offset = parsed
	}

	payload, err := s.service.Search(r.Context(), search.Query{
		Text:               q,
		FilterType:         search.ResultType(filterType),
		FilterRestaurantID: restaurantID,
		Limit:              limit,
		Offset:             offset,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 1 && parts[0] == "restaurants" {
		if r.Method == http.MethodGet {
			restaurants, version, err := s.service.ListRestaurants(r.Context(), true)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"restaurants": restaurants, "version": version})
			return
		}
		if r.Method == http.MethodPost {
			var body restaurantBody
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			doc, err := s.service.CreateRestaurant(r.Context(), body.Restaurant)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"restaurants": doc.Restaurants, "version": doc.Version})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 2 && parts[0] == "restaurants" {
		id := parts[1]
		if r.Method == http.MethodPut {
			var body restaurantBody
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			body.Restaurant.ID = id
			doc, err := s.service.UpdateRestaurant(r.Context(), body.Restaurant)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"restaurants": doc.Restaurants, "version": doc.Version})
			return
		}
		if r.Method == http.MethodDelete {
			doc, err := s.service.DeleteRestaurant(r.Context(), id)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"restaurants": doc.Restaurants, "version": doc.Version})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 1 && parts[0] == "import" && r.Method == http.MethodPost {
		var body struct {
			SpreadsheetID string `json:"spreadsheetId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Import(r.Context(), body.SpreadsheetID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(parts) == 1 && parts[0] == "media-sync" && r.Method == http.MethodPost {
		var body struct {
			FolderLink string `json:"folderLink"`
			DestPath   string `json:"destPath"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.MediaSync(r.Context(), body.FolderLink, body.DestPath)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(parts) == 1 && parts[0] == "repair" && r.Method == http.MethodPost {
		writeJSON(w, http.StatusOK, s.service.Repair(r.Context()))
		return
	}

	if len(parts) == 1 && parts[0] == "backups" && r.Method == http.MethodGet {
		entries, err := s.service.Backups(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list backups", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"backups": entries})
		return
	}

	if len(parts) == 2 && parts[0] == "backups" && parts[1] == "purge" && r.Method == http.MethodPost {
		var body struct {
			Days int `json:"days"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		removed, err := s.service.PurgeBackups(r.Context(), body.Days)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
		return
	}

	if len(parts) == 1 && parts[0] == "database" {
		if r.Method == http.MethodGet {
			raw, version, err := s.service.RawDatabase(r.Context())
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"content": raw, "version": version})
			return
		}
		if r.Method == http.MethodPost {
			var body struct {
				AccessToken string `json:"accessToken"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateDatabase(r.Context(), body.AccessToken)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 1 && parts[0] == "credentials" && r.Method == http.MethodPut {
		var body struct {
			DocumentID  string `json:"documentId"`
			AccessToken string `json:"accessToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetCredentials(r.Context(), body.DocumentID, body.AccessToken); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 1 && parts[0] == "snapshots" && r.Method == http.MethodGet {
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		history, err := s.service.Snapshots(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list snapshots", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": history})
		return
	}

	if len(parts) == 2 && parts[0] == "snapshots" && r.Method == http.MethodGet {
		content, err := s.service.SnapshotContent(parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"content": content})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

type restaurantBody struct {
	Restaurant catalog.Restaurant `json:"restaurant"`
}

func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	token := bearerToken(r)
	if s.adminToken == "" || token == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, docstore.ErrConflict):
		return http.StatusConflict, "CONFLICT", "The database changed underneath this edit; reload and retry", nil
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, docstore.ErrDuplicateID):
		return http.StatusConflict, "DUPLICATE_ID", "An entity with this id already exists", nil
	case errors.Is(err, docstore.ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_TOKEN", "The document store rejected the access token", nil
	case errors.Is(err, docstore.ErrNoCredentials):
		return http.StatusConflict, "NO_CREDENTIALS", "No document store credentials configured; set them via /api/admin/credentials", nil
	case errors.Is(err, sheets.ErrMissingAPIKey):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "No spreadsheet API key configured", nil
	case errors.Is(err, sheets.ErrBadAPIKey):
		return http.StatusBadGateway, "SHEETS_BAD_API_KEY", "The spreadsheet service rejected the API key", nil
	case errors.Is(err, sheets.ErrAccessDenied):
		return http.StatusBadGateway, "SHEETS_ACCESS_DENIED", "The spreadsheet is not shared publicly", nil
	case errors.Is(err, sheets.ErrServiceDisabled):
		return http.StatusBadGateway, "SHEETS_API_DISABLED", "The spreadsheet API is disabled for this key's project", nil
	case errors.Is(err, sheets.ErrNotFound):
		return http.StatusNotFound, "SHEETS_NOT_FOUND", "Spreadsheet not found", nil
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Cart is empty", nil
	case errors.Is(err, order.ErrNoPhone):
		return http.StatusServiceUnavailable, "ORDERS_UNAVAILABLE", "No catering phone number configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
