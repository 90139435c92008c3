package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/teeup/internal/model"
	"github.com/hitoshi/teeup/internal/participant"
)

// ParticipantServiceInterface は参加者ハンドラーが必要とするサービスインターフェース。
type ParticipantServiceInterface interface {
	// List は全参加者を返す。
	List(ctx context.Context) ([]*model.Participant, error)
	// Get は指定IDの参加者を返す。
	Get(ctx context.Context, id string) (*model.Participant, error)
	// FindByName は名前で参加者を検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, firstName, lastInitial string) (*model.Participant, error)
	// Create は参加者を作成する。
	Create(ctx context.Context, in participant.Input) (*model.Participant, error)
	// Update は参加者を部分更新する。
	Update(ctx context.Context, id string, patch model.ParticipantPatch) (*model.Participant, error)
	// Delete は参加者と関連する申込を削除する。
	Delete(ctx context.Context, id string) error
}

// ParticipantHandler は参加者管理のHTTPハンドラー。
type ParticipantHandler struct {
	service ParticipantServiceInterface
}

// NewParticipantHandler はParticipantHandlerを生成する。
func NewParticipantHandler(service ParticipantServiceInterface) *ParticipantHandler {
	return &ParticipantHandler{service: service}
}

// createParticipantRequest は参加者作成リクエストのボディ。
type createParticipantRequest struct {
	FirstName   string `json:"firstName"`
	LastInitial string `json:"lastInitial"`
	Contact     string `json:"contact"`
}

// updateParticipantRequest は参加者更新リクエストのボディ。省略したフィールドは変更しない。
type updateParticipantRequest struct {
	FirstName   *string `json:"firstName"`
	LastInitial *string `json:"lastInitial"`
	Contact     *string `json:"contact"`
}

// ListParticipants は参加者一覧を返す。
// firstNameまたはlastInitialが指定された場合は名前検索として1件（またはnull）を返す。
// GET /participants
func (h *ParticipantHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("firstName") || q.Has("lastInitial") {
		p, err := h.service.FindByName(r.Context(), q.Get("firstName"), q.Get("lastInitial"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if p == nil {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, toParticipantResponse(p))
		return
	}

	participants, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]participantResponse, len(participants))
	for i, p := range participants {
		resp[i] = toParticipantResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateParticipant は参加者を作成する。
// POST /participants
func (h *ParticipantHandler) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	var req createParticipantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), participant.Input{
		FirstName:   req.FirstName,
		LastInitial: req.LastInitial,
		Contact:     req.Contact,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}

// GetParticipant は1人の参加者を返す。
// GET /participants/{id}
func (h *ParticipantHandler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}

// UpdateParticipant は参加者を部分更新する。
// PUT /participants/{id}
func (h *ParticipantHandler) UpdateParticipant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateParticipantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Update(r.Context(), id, model.ParticipantPatch{
		FirstName:   req.FirstName,
		LastInitial: req.LastInitial,
		Contact:     req.Contact,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}

// DeleteParticipant は参加者を削除する。
// DELETE /participants/{id}
func (h *ParticipantHandler) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
