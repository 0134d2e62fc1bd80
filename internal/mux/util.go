package mux

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
	"github.com/sirupsen/logrus"
)

func decodeRequest(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	if ct := r.Header.Get("Content-Type"); ct != "application/json" && ct != "text/json" {
		writeJSONError(w, http.StatusUnsupportedMediaType, nil)
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("could not write JSON response")
	}
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// writeAppError maps the actor error taxonomy onto HTTP statuses
func writeAppError(w http.ResponseWriter, err error) {
	var validation apperror.Validation
	var notFound apperror.NotFound
	var authorization apperror.Authorization
	var protocol apperror.Protocol
	var transient apperror.TransientIO

	switch {
	case errors.As(err, &validation), errors.As(err, &protocol):
		writeJSONError(w, http.StatusBadRequest, err)
	case errors.As(err, &notFound):
		writeJSONError(w, http.StatusNotFound, err)
	case errors.As(err, &authorization):
		writeJSONError(w, http.StatusForbidden, err)
	case errors.As(err, &transient):
		writeJSONError(w, http.StatusServiceUnavailable, err)
	default:
		writeJSONError(w, http.StatusInternalServerError, err)
	}
}

func writeJSONError(w http.ResponseWriter, statusCode int, err error) {
	var msg string

	if statusCode < 500 && err != nil {
		msg = err.Error()
	} else {
		msg = http.StatusText(statusCode)
	}

	if statusCode >= 500 {
		logrus.WithField("statusCode", statusCode).Error(err)
	}

	writeJSON(w, statusCode, errorResponse{
		Message:    msg,
		StatusCode: statusCode,
	})
}
