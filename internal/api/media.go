package api

import (
	"net/http"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/transcript"
)

type recordingsResponse struct {
	Success    bool                  `json:"success"`
	Recording  *recording.Recording  `json:"recording,omitempty"`
	Recordings []recording.Recording `json:"recordings,omitempty"`
}

type transcriptsResponse struct {
	Success     bool                    `json:"success"`
	Transcript  *transcript.Transcript  `json:"transcript,omitempty"`
	Transcripts []transcript.Transcript `json:"transcripts,omitempty"`
}

func (server *Server) recordings(w http.ResponseWriter, r *http.Request) {
	callSid := r.URL.Query().Get("callSid")
	if callSid == "" {
		writeJSON(w, http.StatusOK, recordingsResponse{Success: true, Recordings: server.RecordingService.List()})
		return
	}

	found, err := server.RecordingService.GetByCallSid(callSid)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recordingsResponse{Success: true, Recording: &found})
}

func (server *Server) transcripts(w http.ResponseWriter, r *http.Request) {
	callSid := r.URL.Query().Get("callSid")
	if callSid == "" {
		writeJSON(w, http.StatusOK, transcriptsResponse{Success: true, Transcripts: server.TranscriptService.List()})
		return
	}

	found, err := server.TranscriptService.GetByCallSid(callSid)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transcriptsResponse{Success: true, Transcript: &found})
}
