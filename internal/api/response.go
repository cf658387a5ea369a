package api

import (
	"errors"
	"net/http"

	"busticket/internal/domain"
	"busticket/internal/models"

	"github.com/gin-gonic/gin"
)

const gatewayFailureMessage = "Failed to initiate online payment. Please try cash payment."

// envelope is the response shape shared by every JSON endpoint.
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []models.FieldError `json:"errors,omitempty"`
	Seats   []string            `json:"seats,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// fail translates a service error into a status code and envelope and aborts the chain.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	var (
		verr     *domain.ValidationError
		invalid  *domain.InvalidSeatError
		conflict *domain.SeatConflictError
		gateway  *domain.GatewayError
	)

	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: "Validation failed", Errors: verr.Fields})
	case errors.As(err, &invalid):
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: invalid.Error(), Seats: invalid.Seats})
	case errors.As(err, &conflict):
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: conflict.Error(), Seats: conflict.Seats})
	case errors.As(err, &gateway):
		s.logger.Error().Err(err).Str("ticket", gateway.Booking.TicketNumber).Msg("Checkout initiation failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, envelope{
			Message: gatewayFailureMessage,
			Data:    gin.H{"booking": gateway.Booking},
		})
	case domain.IsNotFound(err):
		c.AbortWithStatusJSON(http.StatusNotFound, envelope{Message: err.Error()})
	case errors.Is(err, domain.ErrCancellationWindowClosed):
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: s.windowMessage})
	case errors.Is(err, domain.ErrAlreadyCancelled),
		errors.Is(err, domain.ErrPaymentVerificationFailed),
		errors.Is(err, domain.ErrVehicleInUse),
		errors.Is(err, domain.ErrPaymentNotConfigured):
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Message: "Not authorized"})
	case errors.Is(err, domain.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, envelope{Message: "Insufficient permissions"})
	default:
		s.logger.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", c.GetString(requestIDKey)).
			Msg("Request failed")
		body := envelope{Message: "Internal server error"}
		if !s.production {
			body.Error = err.Error()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	}
}
