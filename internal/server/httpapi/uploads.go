package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/filepin/internal/common"
	"github.com/dmitrijs2005/filepin/internal/server/models"
)

type uploadInitRequest struct {
	Filename    string `json:"filename"`
	MimeType    string `json:"mimeType"`
	TotalChunks int    `json:"totalChunks"`
	ChunkSize   int64  `json:"chunkSize"`
	FileSize    int64  `json:"fileSize"`
}

type uploadInitResponse struct {
	UploadID string `json:"uploadId"`
	Status   string `json:"status"`
}

type uploadStatusResponse struct {
	UploadID string `json:"uploadId"`
	Filename string `json:"filename"`
	Received []int  `json:"received"`
	Total    int    `json:"total"`
	Status   string `json:"status"`
}

func (s *Server) handleUploadInit(w http.ResponseWriter, r *http.Request) {
	var req uploadInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	session, err := s.uploads.InitSession(r.Context(), ownerID(r),
		req.Filename, req.MimeType, req.TotalChunks, req.ChunkSize, req.FileSize)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadInitResponse{
		UploadID: session.ID,
		Status:   string(session.Status),
	})
}

// chunkIndex reads the chunk index from the X-Chunk-Index header, falling
// back to the chunkIndex query parameter.
func chunkIndex(r *http.Request) (int, error) {
	raw := r.Header.Get("X-Chunk-Index")
	if raw == "" {
		raw = r.URL.Query().Get("chunkIndex")
	}
	if raw == "" {
		return 0, common.ErrorValidation
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]

	index, err := chunkIndex(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "chunk index required"})
		return
	}

	if err := s.uploads.AcceptChunk(r.Context(), ownerID(r), uploadID, index, r.Body); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"uploadId": uploadID, "index": index})
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]

	status, err := s.uploads.Status(r.Context(), ownerID(r), uploadID)
	if err != nil {
		writeError(w, err)
		return
	}

	received := status.Received
	if received == nil {
		received = []int{}
	}
	writeJSON(w, http.StatusOK, uploadStatusResponse{
		UploadID: status.SessionID,
		Filename: status.Filename,
		Received: received,
		Total:    status.Total,
		Status:   string(status.State),
	})
}

func (s *Server) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]

	obj, err := s.uploads.Complete(r.Context(), ownerID(r), uploadID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, objectToResponse(obj))
}

type objectResponse struct {
	ID                  string             `json:"id"`
	Filename            string             `json:"filename"`
	Size                int64              `json:"size"`
	MimeType            string             `json:"mimeType"`
	SHA256              string             `json:"sha256"`
	CID                 string             `json:"cid,omitempty"`
	Pinned              bool               `json:"pinned"`
	Status              string             `json:"status"`
	VerificationPending bool               `json:"verificationPending"`
	Verified            bool               `json:"verified"`
	LastVerifiedSHA256  string             `json:"lastVerifiedSha256,omitempty"`
	Thumbnail           *thumbnailResponse `json:"thumbnail,omitempty"`
}

type thumbnailResponse struct {
	CID    string `json:"cid"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func objectToResponse(obj *models.StoredObject) objectResponse {
	resp := objectResponse{
		ID:                  obj.ID,
		Filename:            obj.Filename,
		Size:                obj.Size,
		MimeType:            obj.MimeType,
		SHA256:              obj.SHA256,
		CID:                 obj.CID,
		Pinned:              obj.Pinned,
		Status:              string(obj.Status),
		VerificationPending: obj.VerificationPending,
		Verified:            obj.Verified,
		LastVerifiedSHA256:  obj.LastVerifiedSHA256,
	}
	if obj.Thumbnail != nil {
		resp.Thumbnail = &thumbnailResponse{
			CID:    obj.Thumbnail.CID,
			Format: obj.Thumbnail.Format,
			Width:  obj.Thumbnail.Width,
			Height: obj.Thumbnail.Height,
		}
	}
	return resp
}
