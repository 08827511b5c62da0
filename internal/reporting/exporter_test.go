package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/domain"
)

type fakeUploader struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(input.Bucket)
	f.key = aws.ToString(input.Key)
	f.contentType = aws.ToString(input.ContentType)
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &manager.UploadOutput{}, nil
}

func TestExportRunMetrics(t *testing.T) {
	up := &fakeUploader{}
	exporter := NewExporter(up, "reports", zerolog.Nop())
	exportedAt := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)
	exporter.now = func() time.Time { return exportedAt }

	m := domain.RunMetrics{RunID: "run-1", MAPE: 12.5, RMSE: 2.08, RecordsEvaluated: 3}
	require.NoError(t, exporter.ExportRunMetrics(context.Background(), m))

	assert.Equal(t, "reports", up.bucket)
	assert.Equal(t, "forecast-accuracy/2026-03-16/run-1.json", up.key)
	assert.Equal(t, "application/json", up.contentType)

	var report Report
	require.NoError(t, json.Unmarshal(up.body, &report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, m, report.Metrics)
	assert.Equal(t, exportedAt, report.ExportedAt)
}

func TestExportRunMetrics_UploadError(t *testing.T) {
	up := &fakeUploader{err: errors.New("access denied")}
	exporter := NewExporter(up, "reports", zerolog.Nop())

	err := exporter.ExportRunMetrics(context.Background(), domain.RunMetrics{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewS3Exporter_RequiresBucket(t *testing.T) {
	_, err := NewS3Exporter(context.Background(), config.ReportConfig{}, zerolog.Nop())
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestNewS3Exporter_CustomEndpoint(t *testing.T) {
	exporter, err := NewS3Exporter(context.Background(), config.ReportConfig{
		Bucket:    "reports",
		Endpoint:  "http://localhost:9000",
		Region:    "auto",
		AccessKey: "key",
		SecretKey: "secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "reports", exporter.bucket)
}
