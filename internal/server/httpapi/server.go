// Package httpapi exposes the HTTP surface of the server process: the
// chunked-upload endpoints, file operations, and the SSE job-event stream.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
	"github.com/dmitrijs2005/filepin/internal/server/uploads"
)

// Server holds the request handlers and their collaborators. Routing is
// gorilla/mux; every route sits behind the bearer-token middleware.
type Server struct {
	uploads   *uploads.Service
	objects   *objects.Service
	bus       events.Bus
	logger    logging.Logger
	secretKey []byte
}

func NewServer(up *uploads.Service, obj *objects.Service, bus events.Bus, logger logging.Logger, secretKey []byte) *Server {
	return &Server{
		uploads:   up,
		objects:   obj,
		bus:       bus,
		logger:    logger,
		secretKey: secretKey,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/uploads/init", s.handleUploadInit).Methods(http.MethodPost)
	api.HandleFunc("/uploads/{uploadId}/chunk", s.handleUploadChunk).Methods(http.MethodPut)
	api.HandleFunc("/uploads/{uploadId}/status", s.handleUploadStatus).Methods(http.MethodGet)
	api.HandleFunc("/uploads/{uploadId}/complete", s.handleUploadComplete).Methods(http.MethodPost)

	api.HandleFunc("/files/{id}/verify", s.handleFileVerify).Methods(http.MethodPost)
	api.HandleFunc("/files/{id}", s.handleFileDelete).Methods(http.MethodDelete)
	api.HandleFunc("/files/{id}/download", s.handleFileDownload).Methods(http.MethodGet)

	api.HandleFunc("/streams/jobs", s.handleJobStream).Methods(http.MethodGet)

	return r
}
