package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	prometheusFleet "git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/prometheus"
	"github.com/avast/retry-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const recordingContentType = "audio/wav"

var (
	ErrNotConfigured  = errors.New("minio is not configured")
	ErrBucketNotFound = errors.New("minio bucket does not exist")
)

type MinioClient struct {
	Client         *minio.Client
	CircuitBreaker *gobreaker.CircuitBreaker[string]
	BucketName     string
	PathPrefix     string
}

// NewMinioClient connects to the archive bucket configured in config.Conf.
func NewMinioClient() (*MinioClient, error) {
	if !config.Conf.MinioConfigured() {
		return nil, ErrNotConfigured
	}

	endpointURL := config.Conf.MinioEndpointURL

	client, err := minio.New(endpointURL, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Conf.MinioAccessKey, config.Conf.MinioSecretKey, ""),
		Secure: config.Conf.MinioSecure,
	})
	if err != nil {
		logging.Logger.Error("Failed to initialize MinIO client",
			zap.String("endpoint", endpointURL),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("MinIO client initialized",
		zap.String("endpoint", endpointURL),
		zap.String("bucket", config.Conf.MinioBucketName),
	)

	return &MinioClient{
		Client: client,
		CircuitBreaker: gobreaker.NewCircuitBreaker[string](circuitbreak.NewSettings(
			circuitbreak.MinioService,
			config.Conf.MinioIntervalCB,
			config.Conf.MinioConsecutiveFailuresCB,
			nil,
		)),
		BucketName: config.Conf.MinioBucketName,
		PathPrefix: config.Conf.MinioPathPrefix,
	}, nil
}

// Upload stores the recording under objectKey and returns its URL.
func (m *MinioClient) Upload(ctx context.Context, buffer *bytes.Buffer, objectKey string) (string, error) {
	logging.Logger.Info("Starting MinIO upload",
		zap.String("object_key", objectKey),
		zap.Int("buffer_size", buffer.Len()),
	)

	return m.CircuitBreaker.Execute(func() (string, error) {
		return m.doUpload(ctx, buffer, objectKey)
	})
}

// Ping checks that the bucket is reachable.
func (m *MinioClient) Ping(ctx context.Context) error {
	exists, err := m.Client.BucketExists(ctx, m.BucketName)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, m.BucketName)
	}

	return nil
}

func (m *MinioClient) doUpload(ctx context.Context, buffer *bytes.Buffer, objectKey string) (string, error) {
	timer := prometheus.NewTimer(prometheusFleet.MinioOperationDuration.WithLabelValues("upload"))
	defer timer.ObserveDuration()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.MinioTimeout)*time.Second)
	defer cancel()

	key := m.getKey(objectKey)

	err := retry.Do(
		func() error {
			_, err := m.Client.PutObject(
				ctxWithTimeout,
				m.BucketName,
				key,
				bytes.NewReader(buffer.Bytes()),
				int64(buffer.Len()),
				minio.PutObjectOptions{ContentType: recordingContentType},
			)
			if err != nil {
				logging.Logger.Error("MinIO upload failed",
					zap.String("object_key", key),
					zap.String("error", err.Error()),
				)
			}

			return err
		},
		retry.Context(ctxWithTimeout),
		retry.LastErrorOnly(true),
		retry.Attempts(max(config.Conf.MinioMaxRetryAttempts, 1)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.MinioRetryBackoffMinSeconds)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.MinioRetryBackoffMaxSeconds)*time.Second),
	)
	if err != nil {
		logging.Logger.Error("MinIO upload failed after all retry attempts",
			zap.String("object_key", key),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	url := m.generateURL(key)

	logging.Logger.Info("MinIO upload completed successfully",
		zap.String("object_key", key),
		zap.String("url", url),
	)

	return url, nil
}

func (m *MinioClient) generateURL(key string) string {
	return m.Client.EndpointURL().JoinPath(m.BucketName, key).String()
}

func (m *MinioClient) getKey(objectKey string) string {
	return path.Join(strings.Trim(m.PathPrefix, "/"), objectKey)
}
