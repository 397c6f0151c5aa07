package healthchecker

import (
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/minio"
)

func MinioComponent(minioClient *minio.MinioClient) Component {
	component := Component{
		Name:       "archive",
		Service:    circuitbreak.MinioService,
		Configured: minioClient != nil,
	}

	if minioClient != nil {
		component.Ping = minioClient.Ping
	}

	return component
}
