package healthchecker

import (
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
)

func StoreComponent(backend store.Backend) Component {
	return Component{
		Name:       "store:" + backend.Name(),
		Service:    circuitbreak.DBService,
		Configured: true,
		Required:   config.Conf.StoreBackend != config.BackendMemory,
		Ping:       backend.Ping,
	}
}
