package webui

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrResponse 统一的错误响应
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

var errUnavailable = &ErrResponse{HTTPStatusCode: http.StatusServiceUnavailable, StatusText: "cleaned data not loaded"}

func errInvalidRequest(err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusBadRequest, StatusText: "invalid request", ErrorText: err.Error()}
}

func errInternal(err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusInternalServerError, StatusText: "internal error", ErrorText: err.Error()}
}
