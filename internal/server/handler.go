package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/hipnotes/internal/pipeline"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// pipelineHandler adapts a pipeline runner to HTTP: it normalizes the
// request, runs the lifecycle and renders the response or error envelope.
func (s *Server) pipelineHandler(runner pipeline.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "handler", runner.Name())

		status, err := s.serve(w, r, runner)
		if err != nil {
			status = writeError(w, r, err)
		}
		s.metrics.countRequest(runner.Name(), status)
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, runner pipeline.Runner) (int, error) {
	req, err := normalize(w, r)
	if err != nil {
		return 0, err
	}
	resp, err := runner.Run(r.Context(), req)
	if err != nil {
		return 0, err
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusNoContent || resp.Body == nil {
		w.WriteHeader(status)
		return status, nil
	}
	writeJSON(w, status, resp.Body)
	return status, nil
}

// normalize converts an HTTP request into the pipeline's raw request.
func normalize(w http.ResponseWriter, r *http.Request) (*pipeline.Request, error) {
	params := make(map[string]string)
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key == "*" {
				continue
			}
			params[key] = rctx.URLParams.Values[i]
		}
	}

	body, err := decodeBody(w, r)
	if err != nil {
		return nil, err
	}

	return &pipeline.Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Params:   params,
		Query:    r.URL.Query(),
		Body:     body,
		Header:   r.Header,
		Identity: Identity(r.Context()),
	}, nil
}

// decodeBody returns the JSON object in the request body, or nil when the
// body is empty.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pipeline.ErrValidation(fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, pipeline.ErrValidation("Malformed JSON body").WithCause(err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, pipeline.ErrValidation("Request body must be a JSON object")
	}
	return obj, nil
}
