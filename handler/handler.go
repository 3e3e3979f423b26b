package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func Index(w http.ResponseWriter) {
	Message(w, http.StatusOK, "hansard index")
}

func Message(w http.ResponseWriter, status int, message string, details ...any) {
	response := struct {
		Message string `json:"message"`
		Details []any  `json:"details,omitempty"`
	}{
		Message: message,
		Details: details,
	}
	body, marshalErr := json.Marshal(response)
	if marshalErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"message": %q, "details":%q}`, message, marshalErr.Error())
		return
	}
	w.WriteHeader(status)
	w.Write(body)
}

func Error(w http.ResponseWriter, status int, message string, err error, details ...any) {
	response := struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Details []any  `json:"details,omitempty"`
	}{
		Message: message,
		Error:   err.Error(),
		Details: details,
	}
	body, marshalErr := json.Marshal(response)
	if marshalErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"message": %q, "error": %q, "details":%q}`, message, err.Error(), marshalErr.Error())
		return
	}
	w.WriteHeader(status)
	w.Write(body)
}

// JSON writes v as the response body.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		Error(w, http.StatusInternalServerError, "could not marshal response", err)
		return
	}
	w.WriteHeader(status)
	w.Write(body)
}
