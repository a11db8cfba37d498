package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/mealplanner/internal/model"
)

// ErrorResponse はAPIエラーのレスポンスボディ。
// クライアントはcategoryで表示を切り替え、actionをそのまま利用者に見せる。
type ErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func errorResponseOf(apiErr *model.APIError) ErrorResponse {
	if apiErr == nil {
		apiErr = model.NewInternalError()
	}
	return ErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// WriteAPIError はapiErrをstatusCodeで書き込む。apiErrがnilなら内部エラーとして扱う。
func WriteAPIError(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Del("Content-Length")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponseOf(apiErr))
}

// WriteInternalServerError は500を書き込む。原因はログにのみ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, http.StatusInternalServerError, model.NewInternalError())
}
