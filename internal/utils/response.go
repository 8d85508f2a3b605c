package utils

import (
	"time"

	"underwriting-service/internal/models"
)

type SuccessResponse struct {
	Success bool  `json:"success"`
	Data    any   `json:"data"`
	Meta    *Meta `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// kindCodes maps classified engine failures onto wire error codes.
var kindCodes = map[models.ErrorKind]string{
	models.ErrValidation:    "VALIDATION_FAILED",
	models.ErrAuthorization: "FORBIDDEN",
	models.ErrState:         "INVALID_STATE",
	models.ErrResource:      "INSUFFICIENT_RESOURCES",
	models.ErrNotFound:      "NOT_FOUND",
}

func CreateErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error: APIError{
			Code:    code,
			Message: message,
		},
	}
}

// CreateDomainErrorResponse derives the wire code from the error's
// classified kind; unclassified errors report INTERNAL_ERROR.
func CreateDomainErrorResponse(err error) ErrorResponse {
	code := "INTERNAL_ERROR"
	if mapped, ok := kindCodes[models.KindOf(err)]; ok {
		code = mapped
	}
	return CreateErrorResponse(code, err.Error())
}

func CreateSuccessResponse(data any) SuccessResponse {
	return SuccessResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Timestamp: time.Now(),
		},
	}
}
