package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/autocrew/autocrew/internal/kb"
	"github.com/autocrew/autocrew/internal/provision"
	"github.com/autocrew/autocrew/internal/storage"
)

const maxUploadBodySize = 10 << 20 // 10MB

// Store abstracts the relational reads and writes the API layer needs.
type Store interface {
	CreateClient(ctx context.Context, c storage.Client) error
	GetClient(ctx context.Context, clientCode string) (storage.Client, error)
	ListClients(ctx context.Context, limit int) ([]storage.Client, error)
	GetCrew(ctx context.Context, id string) (storage.Crew, error)
	ListCrewsByClient(ctx context.Context, clientCode string) ([]storage.Crew, error)
	UpdateCrewConfig(ctx context.Context, id string, cfg storage.CrewConfig) error
	GetDocument(ctx context.Context, docID string) (storage.Document, error)
	ListDocumentsByCrew(ctx context.Context, crewID string, limit int) ([]storage.Document, error)
	SaveConversation(ctx context.Context, c storage.Conversation) error
	ListConversationsByCrew(ctx context.Context, crewID string, limit int) ([]storage.Conversation, error)
}

// CrewProvisioner abstracts crew and client lifecycle orchestration.
type CrewProvisioner interface {
	ProvisionCrew(ctx context.Context, in provision.Input) (storage.Crew, int, error)
	DeprovisionCrew(ctx context.Context, crewID string) error
	DeleteClient(ctx context.Context, clientCode string) (provision.TeardownResult, error)
}

// Uploader abstracts the knowledge-base upload pipeline.
type Uploader interface {
	Upload(ctx context.Context, req kb.UploadRequest) (storage.Document, error)
}

// ChunkLister abstracts chunk inspection against a crew's vector table.
type ChunkLister interface {
	ListChunks(ctx context.Context, vectorTable, docID string, limit int) ([]kb.Chunk, error)
}

type AppDeps struct {
	Store       Store
	Provisioner CrewProvisioner
	KB          Uploader
	Chunks      ChunkLister // optional; if nil, chunk inspection returns 503
	Token       string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/clients", handleCreateClient(deps))
		r.Get("/clients", handleListClients(deps))
		r.Delete("/clients/{code}", handleDeleteClient(deps))

		r.Post("/crews", handleProvisionCrew(deps))
		r.Get("/crews", handleListCrews(deps))
		r.Delete("/crews/{id}", handleDeprovisionCrew(deps))
		r.Patch("/crews/{id}/widget", handlePatchWidget(deps))
		r.Patch("/crews/{id}/support-contact", handlePatchSupportContact(deps))

		r.Post("/crews/{id}/conversations", handleRecordConversation(deps))
		r.Get("/crews/{id}/conversations", handleListConversations(deps))

		r.Post("/crews/{id}/documents", handleUploadDocument(deps))
		r.Get("/crews/{id}/documents", handleListDocuments(deps))
		r.Get("/documents/{docId}", handleGetDocument(deps))
		r.Get("/documents/{docId}/chunks", handleListChunks(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type createClientRequest struct {
	ClientCode  string `json:"client_code"`
	CompanyName string `json:"company_name"`
	Plan        string `json:"plan"`
}

type clientResponse struct {
	ID          string    `json:"id"`
	ClientCode  string    `json:"client_code"`
	CompanyName string    `json:"company_name"`
	Plan        string    `json:"plan"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func toClientResponse(c storage.Client) clientResponse {
	return clientResponse{
		ID:          c.ID,
		ClientCode:  c.ClientCode,
		CompanyName: c.CompanyName,
		Plan:        c.Plan,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
	}
}

func handleCreateClient(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req createClientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.ClientCode == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "client_code is required")
			return
		}
		if req.CompanyName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "company_name is required")
			return
		}
		if req.Plan == "" {
			req.Plan = "starter"
		}

		client := storage.Client{
			ID:          uuid.New().String(),
			ClientCode:  strings.ToUpper(req.ClientCode),
			CompanyName: req.CompanyName,
			Plan:        req.Plan,
			Status:      "active",
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.CreateClient(r.Context(), client); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create client: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(toClientResponse(client))
	}
}

func handleListClients(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)

		clients, err := deps.Store.ListClients(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list clients: %v", err)
			return
		}

		out := make([]clientResponse, len(clients))
		for i, c := range clients {
			out[i] = toClientResponse(c)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleDeleteClient(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		result, err := deps.Provisioner.DeleteClient(r.Context(), code)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "client not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete client: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

type provisionCrewRequest struct {
	ClientCode string                 `json:"client_code"`
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	WebhookURL string                 `json:"webhook_url"`
	Widget     storage.WidgetSettings `json:"widget"`
}

type crewResponse struct {
	ID         string             `json:"id"`
	ClientCode string             `json:"client_code"`
	CrewCode   string             `json:"crew_code"`
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Status     string             `json:"status"`
	WebhookURL string             `json:"webhook_url,omitempty"`
	Config     storage.CrewConfig `json:"config"`
	CreatedAt  time.Time          `json:"created_at"`
}

func toCrewResponse(c storage.Crew) crewResponse {
	return crewResponse{
		ID:         c.ID,
		ClientCode: c.ClientID,
		CrewCode:   c.CrewCode,
		Name:       c.Name,
		Type:       c.Type,
		Status:     c.Status,
		WebhookURL: c.WebhookURL,
		Config:     c.Config,
		CreatedAt:  c.CreatedAt,
	}
}

func handleProvisionCrew(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req provisionCrewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.ClientCode == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "client_code is required")
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		crew, tablesCreated, err := deps.Provisioner.ProvisionCrew(r.Context(), provision.Input{
			ClientCode: req.ClientCode,
			Name:       req.Name,
			Type:       req.Type,
			WebhookURL: req.WebhookURL,
			Widget:     req.Widget,
		})
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "client not found")
			return
		}
		if errors.Is(err, provision.ErrInvalidCrewType) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to provision crew: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"crew":           toCrewResponse(crew),
			"tables_created": tablesCreated,
		})
	}
}

func handleListCrews(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientCode := r.URL.Query().Get("client")
		if clientCode == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "client query parameter is required")
			return
		}

		crews, err := deps.Store.ListCrewsByClient(r.Context(), clientCode)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list crews: %v", err)
			return
		}

		out := make([]crewResponse, len(crews))
		for i, c := range crews {
			out[i] = toCrewResponse(c)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleDeprovisionCrew(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Provisioner.DeprovisionCrew(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "crew not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to deprovision crew: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handlePatchWidget(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var widget storage.WidgetSettings
		if err := json.NewDecoder(r.Body).Decode(&widget); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		crew, err := deps.Store.GetCrew(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "crew not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get crew: %v", err)
			return
		}

		cfg := crew.Config
		cfg.Widget = widget
		if err := deps.Store.UpdateCrewConfig(r.Context(), id, cfg); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update widget: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}
}

func handlePatchSupportContact(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var contact storage.SupportContact
		if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if contact.Email == "" && contact.Phone == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of email or phone is required")
			return
		}

		crew, err := deps.Store.GetCrew(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "crew not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get crew: %v", err)
			return
		}

		cfg := crew.Config
		cfg.SupportContact = contact
		cfg.ActivationState.SupportConfigured = true
		cfg.ActivationState.Recompute()
		if err := deps.Store.UpdateCrewConfig(r.Context(), id, cfg); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update support contact: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}
}

type conversationResponse struct {
	ID         string    `json:"id"`
	ClientCode string    `json:"client_code"`
	CrewID     string    `json:"crew_id"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
}

func handleRecordConversation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		crewID := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id is required")
			return
		}

		crew, err := deps.Store.GetCrew(r.Context(), crewID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "crew not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get crew: %v", err)
			return
		}

		conv := storage.Conversation{
			ID:        uuid.New().String(),
			ClientID:  crew.ClientID,
			CrewID:    crew.ID,
			SessionID: req.SessionID,
		}
		if err := deps.Store.SaveConversation(r.Context(), conv); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save conversation: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(conversationResponse{
			ID:         conv.ID,
			ClientCode: conv.ClientID,
			CrewID:     conv.CrewID,
			SessionID:  conv.SessionID,
			StartedAt:  conv.StartedAt,
		})
	}
}

func handleListConversations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		crewID := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 50, 200)

		convs, err := deps.Store.ListConversationsByCrew(r.Context(), crewID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list conversations: %v", err)
			return
		}

		out := make([]conversationResponse, len(convs))
		for i, c := range convs {
			out[i] = conversationResponse{
				ID:         c.ID,
				ClientCode: c.ClientID,
				CrewID:     c.CrewID,
				SessionID:  c.SessionID,
				StartedAt:  c.StartedAt,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

type documentResponse struct {
	DocID        string    `json:"doc_id"`
	ClientCode   string    `json:"client_code"`
	CrewID       string    `json:"crew_id"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	PageCount    int       `json:"page_count,omitempty"`
	ChunkCount   int       `json:"chunk_count"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toDocumentResponse(d storage.Document) documentResponse {
	return documentResponse{
		DocID:        d.DocID,
		ClientCode:   d.ClientID,
		CrewID:       d.CrewID,
		Filename:     d.Filename,
		FileType:     d.FileType,
		FileSize:     d.FileSize,
		PageCount:    d.PageCount,
		ChunkCount:   d.ChunkCount,
		Status:       d.Status,
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    d.CreatedAt,
	}
}

func handleUploadDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		crewID := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file field is required: %v", err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read file: %v", err)
			return
		}

		doc, err := deps.KB.Upload(r.Context(), kb.UploadRequest{
			CrewID:   crewID,
			Filename: header.Filename,
			Data:     data,
		})
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "crew not found")
			return
		}
		if err != nil {
			// The pipeline records a terminal error state itself; when it
			// hands back the document, report both.
			if doc.DocID != "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(toDocumentResponse(doc))
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to process document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(toDocumentResponse(doc))
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		crewID := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 50, 200)

		docs, err := deps.Store.ListDocumentsByCrew(r.Context(), crewID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		out := make([]documentResponse, len(docs))
		for i, d := range docs {
			out[i] = toDocumentResponse(d)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleGetDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "docId")

		doc, err := deps.Store.GetDocument(r.Context(), docID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toDocumentResponse(doc))
	}
}

func handleListChunks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Chunks == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "chunk inspection not available")
			return
		}

		docID := chi.URLParam(r, "docId")
		limit := parseIntParam(r, "limit", 20, 100)

		doc, err := deps.Store.GetDocument(r.Context(), docID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}

		crew, err := deps.Store.GetCrew(r.Context(), doc.CrewID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get crew: %v", err)
			return
		}
		if crew.Config.VectorTable == "" {
			httpError(w, http.StatusConflict, "invalid_request_error", "crew has no vector table")
			return
		}

		chunks, err := deps.Chunks.ListChunks(r.Context(), crew.Config.VectorTable, docID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list chunks: %v", err)
			return
		}

		type chunkResult struct {
			ID           string    `json:"id"`
			DocID        string    `json:"doc_id"`
			Content      string    `json:"content"`
			EmbeddingDim int       `json:"embedding_dim"`
			CreatedAt    time.Time `json:"created_at"`
		}
		out := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			out[i] = chunkResult{
				ID:           c.ID,
				DocID:        c.DocID,
				Content:      c.Content,
				EmbeddingDim: len(c.Embedding.Slice()),
				CreatedAt:    c.CreatedAt,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

const maxRequestBodySize = 1 << 20 // 1MB

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
