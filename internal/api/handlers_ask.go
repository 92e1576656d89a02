package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dgallion1/storyqa/internal/answer"
)

const (
	msgMissingFields    = "Faltan campos requeridos"
	msgProcessingFailed = "Error procesando la solicitud"
	msgBodyTooLarge     = "Solicitud demasiado grande"
)

type askRequest struct {
	Question *string `json:"question"`
}

type askResponse struct {
	Question string `json:"question"`
	Response string `json:"response"`
	Model    string `json:"model"`
}

// RequestValidationError reports a malformed /api/ask body.
type RequestValidationError struct {
	Field string
	Err   error
}

func (e *RequestValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid request body: %v", e.Err)
	}
	return fmt.Sprintf("invalid field %q: %v", e.Field, e.Err)
}

func (e *RequestValidationError) Unwrap() error { return e.Err }

var errMissingQuestion = errors.New("missing or null")

// decodeAskRequest accepts any JSON object whose "question" is a string,
// including the empty string. Extra fields are ignored.
func decodeAskRequest(r io.Reader) (string, error) {
	var req askRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return "", &RequestValidationError{Err: err}
	}
	if req.Question == nil {
		return "", &RequestValidationError{Field: "question", Err: errMissingQuestion}
	}
	return *req.Question, nil
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	question, err := decodeAskRequest(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, msgBodyTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.log.Warn("rejected ask request", "error", err)
		jsonError(w, msgMissingFields, http.StatusBadRequest)
		return
	}

	res, err := s.answers.Generate(r.Context(), question)
	var genErr *answer.GenerationError
	switch {
	case err == nil, errors.Is(err, answer.ErrEmptyResponse), errors.As(err, &genErr):
		// Degraded answers are still served with 200; the service logged them.
	default:
		s.log.Error("answer failed", "error", err)
		jsonError(w, msgProcessingFailed, http.StatusInternalServerError)
		return
	}
	s.metrics.ObserveAnswer(string(res.Outcome))

	writeJSON(w, http.StatusOK, askResponse{
		Question: question,
		Response: res.Text,
		Model:    s.answers.Model(),
	})
}
