package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func (s *Server) handleFileVerify(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.objects.RequestVerify(r.Context(), ownerID(r), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "verificationPending": true})
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.objects.Delete(r.Context(), ownerID(r), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "deleted"})
}

func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rc, info, err := s.objects.Download(r.Context(), ownerID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Filename))
	}

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are already out; all we can do is note the broken stream.
		s.logger.Warn(r.Context(), "download stream interrupted", "object_id", id, "error", err.Error())
	}
}
