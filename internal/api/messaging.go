package api

import (
	"fmt"
	"net/http"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/campaign"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/provider"
)

type sendTestRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Message     string `json:"message"     validate:"required,max=500"`
	Voice       bool   `json:"voice"`
}

type sendTestResponse struct {
	Success   bool   `json:"success"`
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	Simulated bool   `json:"simulated"`
}

type generateTemplateRequest struct {
	Channel campaign.Channel `json:"type"    validate:"required,oneof=voice sms"`
	Purpose string           `json:"purpose" validate:"required"`
	Tone    string           `json:"tone"`
}

type generateTemplateResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// sendTest sends a one-off message outside any campaign.
func (server *Server) sendTest(w http.ResponseWriter, r *http.Request) {
	var req sendTestRequest

	err := decode(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	err = server.validate.Struct(req)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", campaign.ErrValidation, err))
		return
	}

	to, err := driver.NormalizePhone(req.PhoneNumber)
	if err != nil {
		writeError(w, err)
		return
	}

	var sent *provider.SendResult

	if req.Voice {
		script, scriptErr := provider.VoiceScript(req.Message, server.Dispatcher.ScriptOptions)
		if scriptErr != nil {
			writeError(w, scriptErr)
			return
		}

		sent, err = server.Provider.PlaceCall(r.Context(), to, script)
	} else {
		sent, err = server.Provider.SendMessage(r.Context(), to, req.Message)
	}

	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendTestResponse{
		Success:   true,
		Sid:       sent.ProviderID,
		Status:    sent.Status,
		Simulated: sent.Simulated,
	})
}

func (server *Server) templates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, server.Presets)
}

func (server *Server) generateTemplate(w http.ResponseWriter, r *http.Request) {
	var req generateTemplateRequest

	err := decode(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	err = server.validate.Struct(req)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", campaign.ErrValidation, err))
		return
	}

	content, err := server.Summarizer.GenerateTemplate(r.Context(), string(req.Channel), req.Purpose, req.Tone)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generateTemplateResponse{Success: true, Content: content})
}
