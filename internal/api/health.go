package api

import (
	"net/http"
)

func (server *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, server.Healthchecker.Check(r.Context()))
}
