package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/teeup/internal/model"
)

// ErrorResponseBody はエラー時のJSON本文。
// クライアントはcodeで判定し、messageをそのまま画面に出す。分類(Kind)は含めない。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusForKind はエラー分類をHTTPステータスに対応付ける。
// 重複・定員超過・名簿上限はいずれも400で返す。
func StatusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalidInput, model.KindConflict, model.KindCapacityExceeded:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は指定したステータスでapiErrを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError はapiErrの分類からステータスを決めて書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForKind(apiErr.Kind), apiErr)
}
