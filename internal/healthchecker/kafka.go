package healthchecker

import (
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/kafka"
)

// KafkaComponent reports the producer through its breaker only; sending a test
// message would pollute the event topic.
func KafkaComponent(producer *kafka.Producer) Component {
	return Component{
		Name:       "kafka",
		Service:    circuitbreak.KafkaProducerService,
		Configured: producer != nil,
	}
}
