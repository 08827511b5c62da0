// Package reporting ships forecast accuracy metrics to S3-compatible object storage
// (AWS S3, Cloudflare R2, MinIO) for the model-performance dashboards.
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/domain"
)

// KeyPrefix is the object prefix of every accuracy report.
const KeyPrefix = "forecast-accuracy"

// Uploader is the subset of manager.Uploader the exporter needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Report is the JSON document stored per forecast run.
type Report struct {
	RunID      string            `json:"run_id"`
	Metrics    domain.RunMetrics `json:"metrics"`
	ExportedAt time.Time         `json:"exported_at"`
}

// Exporter writes one JSON object per forecast run.
type Exporter struct {
	uploader Uploader
	bucket   string
	now      func() time.Time
	log      zerolog.Logger
}

// NewExporter creates an exporter that writes through uploader into bucket.
func NewExporter(uploader Uploader, bucket string, log zerolog.Logger) *Exporter {
	return &Exporter{
		uploader: uploader,
		bucket:   bucket,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("service", "reporting").Logger(),
	}
}

// NewS3Exporter builds an exporter from configuration.
func NewS3Exporter(ctx context.Context, cfg config.ReportConfig, log zerolog.Logger) (*Exporter, error) {
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewExporter(manager.NewUploader(client), cfg.Bucket, log), nil
}

// NewS3Client builds an S3 client from configuration. A custom endpoint switches
// to path-style addressing, which R2 and MinIO require.
func NewS3Client(ctx context.Context, cfg config.ReportConfig) (*s3.Client, error) {
	if !cfg.Enabled() {
		return nil, domain.NewValidationError("REPORT_S3_BUCKET", "is required to export reports")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectKey returns the key a run's report is stored under.
func ObjectKey(runID string, exportedAt time.Time) string {
	return fmt.Sprintf("%s/%s/%s.json", KeyPrefix, exportedAt.Format("2006-01-02"), runID)
}

// ExportRunMetrics uploads m as JSON. Re-exporting a run overwrites its object for that day.
func (e *Exporter) ExportRunMetrics(ctx context.Context, m domain.RunMetrics) error {
	exportedAt := e.now()
	body, err := json.Marshal(Report{RunID: m.RunID, Metrics: m, ExportedAt: exportedAt})
	if err != nil {
		return fmt.Errorf("failed to encode accuracy report: %w", err)
	}

	key := ObjectKey(m.RunID, exportedAt)
	if _, err := e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	e.log.Info().
		Str("run_id", m.RunID).
		Str("key", key).
		Int("records", m.RecordsEvaluated).
		Msg("Accuracy report exported")
	return nil
}
