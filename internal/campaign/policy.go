package campaign

import (
	"context"
	"time"

	"github.com/avast/retry-go"
)

// SendPolicy governs attempts per recipient. The zero value and DefaultSendPolicy
// make a single attempt.
type SendPolicy struct {
	MaxAttempts uint
	Delay       time.Duration
}

func DefaultSendPolicy() SendPolicy {
	return SendPolicy{MaxAttempts: 1}
}

// Do runs send until it succeeds or attempts run out and returns the attempts made.
func (policy SendPolicy) Do(ctx context.Context, send func() error) (uint, error) {
	if policy.MaxAttempts <= 1 {
		return 1, send()
	}

	var attempts uint

	err := retry.Do(
		func() error {
			attempts++
			return send()
		},
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.Attempts(policy.MaxAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(policy.Delay),
		retry.MaxDelay(policy.Delay*time.Duration(policy.MaxAttempts)),
	)

	return attempts, err
}
