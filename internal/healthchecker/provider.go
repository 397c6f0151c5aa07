package healthchecker

import (
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/provider"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/summarizer"
)

func ProviderComponent(sender provider.Provider) Component {
	return Component{
		Name:       "twilio",
		Service:    circuitbreak.ProviderService,
		Configured: sender.Configured(),
	}
}

func SummarizerComponent(summary summarizer.Summarizer) Component {
	return Component{
		Name:       "openai",
		Service:    circuitbreak.SummarizerService,
		Configured: summary.Configured(),
	}
}
