package campaign

import "math"

type Stats struct {
	Total        int     `json:"total"`
	Completed    int     `json:"completed"`
	Failed       int     `json:"failed"`
	Pending      int     `json:"pending"`
	Responded    int     `json:"responded"`
	SuccessRate  float64 `json:"successRate"`
	ResponseRate float64 `json:"responseRate"`
}

type OverallStats struct {
	TotalCampaigns           int `json:"totalCampaigns"`
	ActiveCampaigns          int `json:"activeCampaigns"`
	CompletedCampaigns       int `json:"completedCampaigns"`
	ScheduledCampaigns       int `json:"scheduledCampaigns"`
	FailedCampaigns          int `json:"failedCampaigns"`
	TotalDrivers             int `json:"totalDrivers"`
	TotalCommunications      int `json:"totalCommunications"`
	SuccessfulCommunications int `json:"successfulCommunications"`
}

// delivered reports whether the provider confirmed the message or call reached the driver.
func delivered(status string) bool {
	return status == "completed" || status == "delivered"
}

func failedDelivery(status string) bool {
	return IsTerminalDelivery(status) && !delivered(status)
}

// StatsFor computes delivery stats over the campaign's log entries. Rates are
// percentages rounded to two decimals.
func StatsFor(c Campaign) Stats {
	stats := Stats{Total: len(c.Logs)}

	for _, entry := range c.Logs {
		switch {
		case delivered(entry.Status):
			stats.Completed++
		case failedDelivery(entry.Status):
			stats.Failed++
		default:
			stats.Pending++
		}

		if entry.Transcription != "" || entry.Summary != nil {
			stats.Responded++
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = percentage(stats.Completed, stats.Total)
		stats.ResponseRate = percentage(stats.Responded, stats.Total)
	}

	return stats
}

func percentage(part, total int) float64 {
	return math.Round(float64(part)/float64(total)*10000) / 100
}

func (campaignService *CampaignService) Stats(id string) (Stats, error) {
	found, err := campaignService.Get(id)
	if err != nil {
		return Stats{}, err
	}

	return StatsFor(found), nil
}

func (campaignService *CampaignService) OverallStats(driverCount int) OverallStats {
	stats := OverallStats{TotalDrivers: driverCount}

	for _, c := range campaignService.List() {
		stats.TotalCampaigns++

		switch c.Status {
		case StatusOngoing:
			stats.ActiveCampaigns++
		case StatusCompleted:
			stats.CompletedCampaigns++
		case StatusScheduled:
			stats.ScheduledCampaigns++
		case StatusFailed:
			stats.FailedCampaigns++
		}

		stats.TotalCommunications += len(c.Logs)

		for _, entry := range c.Logs {
			if delivered(entry.Status) {
				stats.SuccessfulCommunications++
			}
		}
	}

	return stats
}
