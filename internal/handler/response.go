// Package handler はREST APIのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/teeup/internal/middleware"
	"github.com/hitoshi/teeup/internal/model"
)

// participantResponse は参加者情報のAPIレスポンス。
type participantResponse struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastInitial string    `json:"lastInitial"`
	Contact     string    `json:"contact"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// participantSummary は申込に埋め込む参加者情報。
type participantSummary struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastInitial string `json:"lastInitial"`
}

// signupResponse は申込情報のAPIレスポンス。
type signupResponse struct {
	ID            string             `json:"id"`
	ParticipantID string             `json:"participantId"`
	Date          string             `json:"date"`
	CreatedAt     time.Time          `json:"createdAt"`
	Participant   participantSummary `json:"participant"`
}

// deleteSignupResponse は申込削除のAPIレスポンス。
type deleteSignupResponse struct {
	Success       bool   `json:"success"`
	DeletedID     string `json:"deletedId"`
	AlreadyAbsent bool   `json:"alreadyAbsent"`
}

// successResponse は本文を持たない成功レスポンス。
type successResponse struct {
	Success bool `json:"success"`
}

func toParticipantResponse(p *model.Participant) participantResponse {
	return participantResponse{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastInitial: p.LastInitial,
		Contact:     p.Contact,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toSignupResponse(s *model.Signup) signupResponse {
	return signupResponse{
		ID:            s.ID,
		ParticipantID: s.ParticipantID,
		Date:          s.Date,
		CreatedAt:     s.CreatedAt,
		Participant: participantSummary{
			ID:          s.Participant.ID,
			FirstName:   s.Participant.FirstName,
			LastInitial: s.Participant.LastInitial,
		},
	}
}

// writeJSON はステータスコード200以外も含めてJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディを解析する。失敗時は400レスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidInputError("Request body must be valid JSON"))
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Kind != model.KindInternal {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteAPIError(w, model.NewInternalError())
}
