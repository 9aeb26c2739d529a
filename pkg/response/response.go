package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"wbtrack-rest-api/pkg/apierror"
)

// Response is the success envelope: {"success":true,"data":...,"meta":...}.
type Response struct {
	Success bool  `json:"success"`
	Data    any   `json:"data,omitempty"`
	Meta    *Meta `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// JSON wraps data in a success envelope and writes it with the given status.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, Response{Success: true, Data: data})
}

// JSONWithMeta is JSON plus pagination metadata.
func JSONWithMeta(w http.ResponseWriter, statusCode int, data any, page, limit int, total int64) {
	writeJSON(w, statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Page: page, Limit: limit, Total: total},
	})
}

// OK sends a 200 response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created sends a 201 response with the created resource.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Error writes an error envelope. A wrapped *apierror.Error keeps its status
// and code; anything else becomes a generic 500 so internal messages never leak.
func Error(w http.ResponseWriter, err error) {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierror.InternalError("")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	if _, werr := w.Write(apiErr.ToJSON()); werr != nil {
		log.Printf("[Response] Failed to write error body: %v", werr)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[Response] Failed to encode body: %v", err)
	}
}
