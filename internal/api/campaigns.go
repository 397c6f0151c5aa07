package api

import (
	"context"
	"net/http"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/campaign"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type campaignResponse struct {
	Success  bool              `json:"success"`
	Campaign campaign.Campaign `json:"campaign"`
}

func (server *Server) listCampaigns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, server.CampaignService.List())
}

func (server *Server) getCampaign(w http.ResponseWriter, r *http.Request) {
	found, err := server.CampaignService.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, found)
}

func (server *Server) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaign.CreateRequest

	err := decode(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := server.CampaignService.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, campaignResponse{Success: true, Campaign: created})
}

func (server *Server) updateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaign.UpdateRequest

	err := decode(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := server.CampaignService.Update(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, campaignResponse{Success: true, Campaign: updated})
}

func (server *Server) campaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := server.CampaignService.Stats(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (server *Server) overallStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, server.CampaignService.OverallStats(len(server.DriverService.List())))
}

// startCampaign marks the campaign ongoing and answers 202 while the sends run
// in the background, either through Kafka or on the local dispatch pool.
func (server *Server) startCampaign(w http.ResponseWriter, r *http.Request) {
	started, targets, err := server.Dispatcher.Begin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if server.DispatchCommander != nil {
		err = server.DispatchCommander.SendDispatchCommand(r.Context(), started.ID)
		if err == nil {
			writeJSON(w, http.StatusAccepted, campaignResponse{Success: true, Campaign: started})
			return
		}

		logging.Logger.Warn("failed to send dispatch command, running locally",
			zap.String("campaign_id", started.ID),
			zap.String("error", err.Error()),
		)
	}

	err = server.runLocally(started, targets)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, campaignResponse{Success: true, Campaign: started})
}

func (server *Server) runLocally(started campaign.Campaign, targets []driver.Driver) error {
	err := server.DispatchPool.Submit(func() {
		_, runErr := server.Dispatcher.Run(server.background, started, targets)
		if runErr != nil {
			logging.Logger.Error("campaign run failed",
				zap.String("campaign_id", started.ID),
				zap.String("error", runErr.Error()),
			)
		}
	})
	if err == nil {
		return nil
	}

	logging.Logger.Error("failed to submit campaign to dispatch pool",
		zap.String("campaign_id", started.ID),
		zap.String("error", err.Error()),
	)

	_, updateErr := server.CampaignService.UpdateStatus(context.WithoutCancel(server.background), started.ID, campaign.StatusFailed, err.Error())
	if updateErr != nil {
		logging.Logger.Error("failed to mark campaign failed", zap.String("error", updateErr.Error()))
	}

	return err
}
