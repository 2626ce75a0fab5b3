package api

import (
	"errors"
	"net/http"

	"storefront-client/internal/apiclient"
	"storefront-client/internal/service"

	"github.com/gin-gonic/gin"
)

// statusFor maps an operation error to a response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCartSync):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrPaymentLaunch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrOrderSubmission):
		return http.StatusConflict
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// messageFor prefers the operation's own message, then the backend's.
func messageFor(err error) string {
	var opErr *service.OperationError
	if errors.As(err, &opErr) {
		return opErr.Message
	}
	if msg := apiclient.MessageOf(err); msg != "" {
		return msg
	}
	return err.Error()
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": messageFor(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
