package handlers

import (
	"net/http"

	apperrors "github.com/auscope/vgljobs/internal/errors"
)

// HTTPErrorResponder renders a handler error.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var httpErrorResponder HTTPErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder replaces the responder; nil restores the default.
func SetHTTPErrorResponder(fn HTTPErrorResponder) {
	if fn == nil {
		ResetHTTPErrorResponder()
		return
	}
	httpErrorResponder = fn
}

// ResetHTTPErrorResponder restores apperrors.RespondWithError.
func ResetHTTPErrorResponder() {
	httpErrorResponder = apperrors.RespondWithError
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
