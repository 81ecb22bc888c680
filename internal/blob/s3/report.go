package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// reportPartSize is the multipart part size. Reports smaller than one part
// go up as a single PutObject.
const reportPartSize int64 = 8 * 1024 * 1024

// ReportArchiver implements domain.ReportArchiver by uploading each report
// as a JSON object partitioned by day.
//
//	reports/2026-10-15/68123456-1792065600.json
type ReportArchiver struct {
	uploader *manager.Uploader
	bucket   string
	audit    domain.AuditStore
}

// NewReportArchiver creates a ReportArchiver writing to c's bucket. audit
// may be nil.
func NewReportArchiver(c *Client, audit domain.AuditStore) *ReportArchiver {
	return newReportArchiver(c.s3, c.bucket, audit)
}

func newReportArchiver(api manager.UploadAPIClient, bucket string, audit domain.AuditStore) *ReportArchiver {
	return &ReportArchiver{
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.PartSize = reportPartSize
		}),
		bucket: bucket,
		audit:  audit,
	}
}

// Archive uploads report and records the upload in the audit log.
func (a *ReportArchiver) Archive(ctx context.Context, report domain.ScanReport) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("s3blob: encode report: %w", err)
	}
	size := buf.Len()

	key := reportKey(report)
	if _, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("s3blob: archive report %s: %w", key, err)
	}

	if a.audit == nil {
		return nil
	}
	if err := a.audit.Log(ctx, "archive.report", map[string]any{
		"path":          key,
		"block":         report.Block,
		"opportunities": len(report.Opportunities),
		"bytes":         size,
	}); err != nil {
		return fmt.Errorf("s3blob: archive report audit log: %w", err)
	}
	return nil
}

func reportKey(report domain.ScanReport) string {
	at := report.StartedAt.UTC()
	return fmt.Sprintf("reports/%s/%d-%d.json", at.Format(time.DateOnly), report.Block, at.Unix())
}

// Compile-time interface check.
var _ domain.ReportArchiver = (*ReportArchiver)(nil)
