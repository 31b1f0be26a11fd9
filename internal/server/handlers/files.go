package handlers

import (
	"errors"
	"io"
	"net/http"

	apperrors "github.com/auscope/vgljobs/internal/errors"
	"github.com/auscope/vgljobs/pkg/fileselect"
)

// SelectedFiles handles POST /files/selected. The body is a file
// selection document; data lists every fileUrl it contains.
func SelectedFiles(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, r, apperrors.BadRequest("unreadable request body").Wrap(err))
		return
	}

	urls, err := fileselect.SelectedFileURLs(body)
	switch {
	case errors.Is(err, fileselect.ErrNoFiles):
		respondWithError(w, r, apperrors.Unprocessable("no files selected"))
		return
	case err != nil:
		respondWithError(w, r, apperrors.BadRequest("malformed file selection").Wrap(err))
		return
	}

	writeJSON(w, http.StatusOK, PortalResponse{Success: true, Data: urls})
}
