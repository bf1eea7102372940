package httpapi

import (
	"errors"
	"net/http"

	"casebook/internal/lifecycle"
)

func mapError(err error) (status int, code, message string, details any) {
	var notFound *lifecycle.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, "NOT_FOUND", notFound.Error(), map[string]any{"kind": notFound.Kind, "ref": notFound.Ref}
	}
	var validation *lifecycle.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Message, map[string]any{"field": validation.Field}
	}
	var transition *lifecycle.InvalidTransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict, "INVALID_TRANSITION", transition.Error(), map[string]any{"from": transition.From, "to": transition.To}
	}
	var backing *lifecycle.BackingStoreError
	if errors.As(err, &backing) {
		return http.StatusBadGateway, "BACKING_STORE_ERROR", "Backing store unavailable", map[string]any{"op": backing.Op}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
