package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"menlo.ai/jan-feed-gateway/app/domain/common"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
)

const internalErrorCode = "c0a6e0f4-8f4e-4a55-9d0e-2b3f7c1d9a10"

// StatusOf maps a domain error kind to an HTTP status.
func StatusOf(err error) int {
	kind, ok := common.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case common.KindFetchFailed:
		return http.StatusBadGateway
	case common.KindMutationRejected:
		return http.StatusConflict
	case common.KindValidationFailed:
		return http.StatusBadRequest
	case common.KindDebounced:
		return http.StatusTooManyRequests
	case common.KindAborted:
		return http.StatusNoContent
	case common.KindUnauthorized:
		return http.StatusUnauthorized
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindCacheUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse renders err for a client. Unknown errors never leak
// their text.
func NewErrorResponse(err error) ErrorResponse {
	var ce *common.Error
	if !errors.As(err, &ce) {
		return ErrorResponse{Code: internalErrorCode, Error: "internal error"}
	}
	return ErrorResponse{
		Code:  ce.Code,
		Error: ce.Message,
		Retry: ce.Kind == common.KindFetchFailed,
	}
}

// AbortWithError writes the status and body for err. Aborted requests were
// superseded by a newer one and get an empty 204.
func AbortWithError(reqCtx *gin.Context, err error) {
	status := StatusOf(err)
	if status == http.StatusNoContent {
		reqCtx.AbortWithStatus(status)
		return
	}
	if status == http.StatusInternalServerError {
		logger.GetLogger().WithError(err).Error("unhandled request error")
	}
	reqCtx.AbortWithStatusJSON(status, NewErrorResponse(err))
}
