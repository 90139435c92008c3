package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/teeup/internal/dates"
	"github.com/hitoshi/teeup/internal/model"
)

// SignupServiceInterface は申込ハンドラーが必要とするサービスインターフェース。
type SignupServiceInterface interface {
	// List は指定範囲の申込を返す。
	List(ctx context.Context, from, to string) ([]*model.Signup, error)
	// ListWindow はnow時点の表示対象範囲の申込を返す。
	ListWindow(ctx context.Context, now time.Time) (dates.Window, []*model.Signup, error)
	// Create は申込を作成する。
	Create(ctx context.Context, participantID, date string) (*model.Signup, error)
	// Delete は申込を削除する。
	Delete(ctx context.Context, id string) (model.DeleteResult, error)
	// ListByParticipant は参加者の申込を日付昇順で返す。
	ListByParticipant(ctx context.Context, participantID string) ([]*model.Signup, error)
}

// SignupHandler は申込管理のHTTPハンドラー。
type SignupHandler struct {
	service SignupServiceInterface
	now     func() time.Time
}

// NewSignupHandler はSignupHandlerを生成する。nowがnilの場合はtime.Nowを使う。
func NewSignupHandler(service SignupServiceInterface, now func() time.Time) *SignupHandler {
	if now == nil {
		now = time.Now
	}
	return &SignupHandler{service: service, now: now}
}

// createSignupRequest は申込作成リクエストのボディ。
type createSignupRequest struct {
	ParticipantID string `json:"participantId"`
	Date          string `json:"date"`
}

// ListSignups は申込一覧を返す。
// from/toが両方とも省略された場合は今週の月曜日から設定週数分を返す。
// GET /signups
func (h *SignupHandler) ListSignups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		signups []*model.Signup
		err     error
	)
	if q.Has("from") || q.Has("to") {
		signups, err = h.service.List(r.Context(), q.Get("from"), q.Get("to"))
	} else {
		_, signups, err = h.service.ListWindow(r.Context(), h.now())
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]signupResponse, len(signups))
	for i, s := range signups {
		resp[i] = toSignupResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListParticipantSignups は1人の参加者の申込を日付を問わず返す。
// GET /participants/{id}/signups
func (h *SignupHandler) ListParticipantSignups(w http.ResponseWriter, r *http.Request) {
	signups, err := h.service.ListByParticipant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]signupResponse, len(signups))
	for i, s := range signups {
		resp[i] = toSignupResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateSignup は申込を作成する。
// POST /signups
func (h *SignupHandler) CreateSignup(w http.ResponseWriter, r *http.Request) {
	var req createSignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	signup, err := h.service.Create(r.Context(), req.ParticipantID, req.Date)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSignupResponse(signup))
}

// DeleteSignup は申込を削除する。既に存在しない場合も成功として返す。
// DELETE /signups?id=
func (h *SignupHandler) DeleteSignup(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Delete(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteSignupResponse{
		Success:       true,
		DeletedID:     result.DeletedID,
		AlreadyAbsent: result.AlreadyAbsent,
	})
}
