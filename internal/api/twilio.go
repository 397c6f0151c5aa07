package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/provider"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/webhook"
	"go.uber.org/zap"
)

// rawBodyKey holds an unparseable callback body in its dead-letter payload.
const rawBodyKey = "raw_body"

// acknowledge answers the provider with 204 whatever happens to the callback.
func (server *Server) acknowledge(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		server.receive(kind, r)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (server *Server) recordingCallback(w http.ResponseWriter, r *http.Request) {
	server.receive(webhook.KindRecording, r)

	goodbye, err := provider.GoodbyeScript(server.Dispatcher.ScriptOptions)
	if err != nil {
		writeError(w, err)
		return
	}

	writeXML(w, goodbye)
}

// receive reads the callback form and hands it to the webhook pool. A body that
// does not parse is dead-lettered as is.
func (server *Server) receive(kind string, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		logging.Logger.Error("failed to read webhook body", zap.String("kind", kind), zap.String("error", err.Error()))
		server.deadLetter(context.WithoutCancel(server.background), kind, webhook.Payload{}, err)

		return
	}

	r.Body = io.NopCloser(bytes.NewReader(raw))

	payload, err := formPayload(r)
	if err != nil {
		logging.Logger.Error("failed to parse webhook form", zap.String("kind", kind), zap.String("error", err.Error()))
		server.deadLetter(context.WithoutCancel(server.background), kind, webhook.Payload{rawBodyKey: string(raw)}, err)

		return
	}

	server.enqueue(kind, payload)
}

// voice serves the call script for a message passed in the query or form.
func (server *Server) voice(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		writeError(w, ErrInvalidBody)
		return
	}

	script, err := provider.VoiceScript(r.Form.Get("message"), server.Dispatcher.ScriptOptions)
	if err != nil {
		writeError(w, err)
		return
	}

	writeXML(w, script)
}

func (server *Server) enqueue(kind string, payload webhook.Payload) {
	err := server.WebhookPool.Submit(func() {
		server.processWebhook(server.background, kind, payload)
	})
	if err != nil {
		logging.Logger.Error("failed to submit webhook to worker pool",
			zap.String("kind", kind),
			zap.String("error", err.Error()),
		)

		server.deadLetter(context.WithoutCancel(server.background), kind, payload, err)
	}
}

func (server *Server) processWebhook(ctx context.Context, kind string, payload webhook.Payload) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error("panic in webhook worker", zap.String("kind", kind), zap.Any("recover", r))
		}
	}()

	err := server.WebhookHandler.Process(ctx, kind, payload)
	if err != nil {
		logging.Logger.Error("failed to process webhook",
			zap.String("kind", kind),
			zap.String("error", err.Error()),
		)

		server.deadLetter(context.WithoutCancel(ctx), kind, payload, err)
	}
}

func (server *Server) deadLetter(ctx context.Context, kind string, payload webhook.Payload, cause error) {
	err := server.DeadLetterService.Mark(ctx, kind, payload, cause.Error())
	if err != nil {
		logging.Logger.Error("failed to record webhook dead letter",
			zap.String("kind", kind),
			zap.String("error", err.Error()),
		)
	}
}

func formPayload(r *http.Request) (webhook.Payload, error) {
	err := r.ParseForm()
	if err != nil {
		return nil, errors.Join(ErrInvalidBody, err)
	}

	payload := make(webhook.Payload, len(r.Form))
	for key := range r.Form {
		payload[key] = r.Form.Get(key)
	}

	return payload, nil
}
