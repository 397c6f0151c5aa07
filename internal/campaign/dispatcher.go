package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/preset"
	prometheusFleet "git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/provider"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotOngoing = errors.New("campaign is not ongoing")

// TargetResolver maps driver ids to drivers, skipping unknown ids.
type TargetResolver interface {
	Resolve(ids []string) []driver.Driver
}

type Dispatcher struct {
	CampaignService *CampaignService
	Drivers         TargetResolver
	Provider        provider.Provider
	Policy          SendPolicy
	Delays          map[Channel]time.Duration
	ScriptOptions   provider.ScriptOptions
}

func NewDispatcher(
	campaignService *CampaignService,
	drivers TargetResolver,
	sender provider.Provider,
) *Dispatcher {
	return &Dispatcher{
		CampaignService: campaignService,
		Drivers:         drivers,
		Provider:        sender,
		Policy: SendPolicy{
			MaxAttempts: config.Conf.DispatchMaxAttempts,
			Delay:       time.Duration(config.Conf.DispatchRetryDelayMs) * time.Millisecond,
		},
		Delays: map[Channel]time.Duration{
			ChannelSMS:   time.Duration(config.Conf.DispatchSMSDelayMs) * time.Millisecond,
			ChannelVoice: time.Duration(config.Conf.DispatchVoiceDelayMs) * time.Millisecond,
		},
		ScriptOptions: provider.DefaultScriptOptions(),
	}
}

// Dispatch begins the campaign and sends to every target before returning.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, id string) (Campaign, error) {
	started, targets, err := dispatcher.Begin(ctx, id)
	if err != nil {
		return Campaign{}, err
	}

	return dispatcher.Run(ctx, started, targets)
}

// Begin checks the preconditions and marks the campaign ongoing.
func (dispatcher *Dispatcher) Begin(ctx context.Context, id string) (Campaign, []driver.Driver, error) {
	current, err := dispatcher.CampaignService.Get(id)
	if err != nil {
		return Campaign{}, nil, err
	}

	if current.Status != StatusScheduled {
		return Campaign{}, nil, fmt.Errorf("%w: status is %s", ErrAlreadyStarted, current.Status)
	}

	targets := dispatcher.Drivers.Resolve(current.TargetDriverIDs)
	if len(targets) == 0 {
		return Campaign{}, nil, fmt.Errorf("%w: %s", ErrNoTargets, id)
	}

	started, err := dispatcher.CampaignService.Campaigns.Update(ctx, id, func(c *Campaign) error {
		if c.Status != StatusScheduled {
			return fmt.Errorf("%w: status is %s", ErrAlreadyStarted, c.Status)
		}

		return c.Transition(StatusOngoing, time.Now())
	})
	if err != nil {
		return Campaign{}, nil, err
	}

	logging.Logger.Info("[Dispatch] campaign started",
		zap.String("campaign_id", id),
		zap.String("channel", string(started.Channel)),
		zap.Int("targets", len(targets)),
	)

	dispatcher.CampaignService.publish(ctx, Event{Type: EventStarted, CampaignID: id, Status: StatusOngoing})

	return started, targets, nil
}

// RunByID runs an ongoing campaign that has not sent anything yet. It is the
// entry point for dispatch commands delivered out of process.
func (dispatcher *Dispatcher) RunByID(ctx context.Context, id string) (Campaign, error) {
	current, err := dispatcher.CampaignService.Get(id)
	if err != nil {
		return Campaign{}, err
	}

	if current.Status != StatusOngoing || len(current.Results) > 0 {
		return current, fmt.Errorf("%w: status is %s with %d results", ErrNotOngoing, current.Status, len(current.Results))
	}

	targets := dispatcher.Drivers.Resolve(current.TargetDriverIDs)
	if len(targets) == 0 {
		return dispatcher.abort(ctx, current, fmt.Errorf("%w: %s", ErrNoTargets, id))
	}

	return dispatcher.Run(ctx, current, targets)
}

// Run sends to each target in order, waiting the channel delay between recipients.
// Per-recipient failures are recorded; anything else aborts the run and fails the campaign.
func (dispatcher *Dispatcher) Run(ctx context.Context, started Campaign, targets []driver.Driver) (finished Campaign, err error) {
	startedAt := time.Now()

	defer func() {
		r := recover()
		if r != nil {
			logging.Logger.Error("[Dispatch] panic while dispatching",
				zap.String("campaign_id", started.ID),
				zap.Any("recover", r),
			)

			finished, err = dispatcher.abort(ctx, started, fmt.Errorf("panic: %v", r))
		}

		prometheusFleet.DispatchDuration.
			WithLabelValues(string(started.Channel), string(finished.Status)).
			Observe(time.Since(startedAt).Seconds())
	}()

	for idx, target := range targets {
		if idx > 0 {
			err = dispatcher.wait(ctx, dispatcher.Delays[started.Channel])
			if err != nil {
				return dispatcher.abort(ctx, started, err)
			}
		}

		if ctx.Err() != nil {
			return dispatcher.abort(ctx, started, ctx.Err())
		}

		result, entry := dispatcher.sendOne(ctx, started, target)

		_, err = dispatcher.CampaignService.Campaigns.Update(ctx, started.ID, func(c *Campaign) error {
			c.Results = append(c.Results, result)
			c.Logs = append(c.Logs, entry)
			c.UpdatedAt = time.Now()

			return nil
		})
		if err != nil {
			return dispatcher.abort(ctx, started, err)
		}

		dispatcher.CampaignService.publish(ctx, Event{
			Type:       EventRecipient,
			CampaignID: started.ID,
			DriverID:   target.ID,
			ProviderID: result.ProviderID,
			Success:    result.Success,
			Error:      result.Error,
		})
	}

	return dispatcher.finish(ctx, started.ID)
}

func (dispatcher *Dispatcher) sendOne(ctx context.Context, started Campaign, target driver.Driver) (Result, LogEntry) {
	body := preset.Render(started.Template, preset.Recipient{
		Name:        target.Name,
		PhoneNumber: target.PhoneNumber,
		Email:       target.Email,
	})

	var (
		sent     *provider.SendResult
		attempts uint
	)

	// Rosters keep numbers as imported; an unusable one fails only this recipient.
	to, err := driver.NormalizePhone(target.PhoneNumber)
	if err != nil {
		err = fmt.Errorf("%w: %q: %w", provider.ErrProvider, target.PhoneNumber, err)
	} else {
		attempts, err = dispatcher.Policy.Do(ctx, func() error {
			var sendErr error

			sent, sendErr = dispatcher.send(ctx, started.Channel, to, body)

			return sendErr
		})
	}

	now := time.Now()
	result := Result{
		DriverID:    target.ID,
		DriverName:  target.Name,
		PhoneNumber: target.PhoneNumber,
		Attempts:    attempts,
		SentAt:      now,
	}
	entry := LogEntry{
		ID:        uuid.NewString(),
		DriverID:  target.ID,
		Channel:   started.Channel,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err != nil {
		logging.Logger.Error("[Dispatch] send failed",
			zap.String("campaign_id", started.ID),
			zap.String("driver_id", target.ID),
			zap.Uint("attempts", attempts),
			zap.String("error", err.Error()),
		)
		prometheusFleet.SendsTotal.WithLabelValues(string(started.Channel), "failure").Inc()

		result.Status = string(StatusFailed)
		result.Error = err.Error()
		entry.Status = string(StatusFailed)

		return result, entry
	}

	logging.Logger.Info("[Dispatch] sent",
		zap.String("campaign_id", started.ID),
		zap.String("driver_id", target.ID),
		zap.String("provider_id", sent.ProviderID),
		zap.Bool("simulated", sent.Simulated),
	)
	prometheusFleet.SendsTotal.WithLabelValues(string(started.Channel), "success").Inc()

	result.Success = true
	result.ProviderID = sent.ProviderID
	result.Simulated = sent.Simulated
	result.Status = sent.Status
	entry.ProviderID = sent.ProviderID
	entry.Status = sent.Status

	return result, entry
}

func (dispatcher *Dispatcher) send(ctx context.Context, channel Channel, to, body string) (*provider.SendResult, error) {
	if channel == ChannelSMS {
		return dispatcher.Provider.SendMessage(ctx, to, body)
	}

	script, err := provider.VoiceScript(body, dispatcher.ScriptOptions)
	if err != nil {
		return nil, err
	}

	return dispatcher.Provider.PlaceCall(ctx, to, script)
}

func (dispatcher *Dispatcher) finish(ctx context.Context, id string) (Campaign, error) {
	finished, err := dispatcher.CampaignService.Campaigns.Update(ctx, id, func(c *Campaign) error {
		if c.IsTerminal() {
			return nil
		}

		status := StatusFailed
		for _, result := range c.Results {
			if result.Success {
				status = StatusCompleted
				break
			}
		}

		if status == StatusFailed {
			c.Error = "all sends failed"
		}

		return c.Transition(status, time.Now())
	})
	if err != nil {
		return Campaign{}, err
	}

	logging.Logger.Info("[Dispatch] campaign finished",
		zap.String("campaign_id", id),
		zap.String("status", string(finished.Status)),
		zap.Int("results", len(finished.Results)),
	)

	dispatcher.CampaignService.publish(ctx, Event{Type: EventFinished, CampaignID: id, Status: finished.Status})

	return finished, nil
}

// abort marks the campaign failed with cause. Results recorded so far are kept.
func (dispatcher *Dispatcher) abort(ctx context.Context, started Campaign, cause error) (Campaign, error) {
	logging.Logger.Error("[Dispatch] campaign aborted",
		zap.String("campaign_id", started.ID),
		zap.String("error", cause.Error()),
	)

	persistCtx := context.WithoutCancel(ctx)

	failed, err := dispatcher.CampaignService.Campaigns.Update(persistCtx, started.ID, func(c *Campaign) error {
		if c.IsTerminal() {
			return nil
		}

		c.Error = cause.Error()

		return c.Transition(StatusFailed, time.Now())
	})
	if err != nil {
		logging.Logger.Error("[Dispatch] failed to mark campaign failed",
			zap.String("campaign_id", started.ID),
			zap.String("error", err.Error()),
		)

		return started, errors.Join(cause, err)
	}

	dispatcher.CampaignService.publish(persistCtx, Event{
		Type:       EventFinished,
		CampaignID: started.ID,
		Status:     failed.Status,
		Error:      cause.Error(),
	})

	return failed, cause
}

func (dispatcher *Dispatcher) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
