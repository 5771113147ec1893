package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pixelmint/server/internal/domain/billing"
	"github.com/pixelmint/server/internal/model"
	apperrors "github.com/pixelmint/server/internal/shared/errors"
)

// handleError maps domain errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	appErr := classify(err)

	resp := model.ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
	}

	var insufficient *billing.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		resp.Details = gin.H{
			"required":  insufficient.Required,
			"available": insufficient.Available,
		}
	}

	c.JSON(appErr.StatusCode, resp)
}

func classify(err error) *apperrors.AppError {
	var insufficient *billing.InsufficientCreditsError

	switch {
	case errors.As(err, &insufficient):
		return apperrors.InsufficientCredits(insufficient.Required, insufficient.Available)

	case errors.Is(err, billing.ErrInsufficientCredits):
		return apperrors.NewAppError("INSUFFICIENT_CREDITS", "insufficient credits", http.StatusPaymentRequired, err)

	case errors.Is(err, billing.ErrUnknownFeature):
		return apperrors.NotFound("feature")

	case errors.Is(err, billing.ErrInvalidRequest):
		return apperrors.BadRequest("invalid request")

	case errors.Is(err, billing.ErrInvalidDecision):
		return apperrors.BadRequest("decision is missing or was rejected")

	case errors.Is(err, billing.ErrIllegalTransition):
		return apperrors.NewAppError("ILLEGAL_TRANSITION", "task state does not allow this operation", http.StatusConflict, err)

	default:
		return apperrors.Internal("internal server error", err)
	}
}
