package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// memS3 records single-part uploads. Reports in these tests never reach
// the multipart path.
type memS3 struct {
	bucket      string
	key         string
	contentType string
	body        []byte
	err         error
}

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.bucket, m.key, m.body = *in.Bucket, *in.Key, b
	if in.ContentType != nil {
		m.contentType = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (m *memS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (m *memS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (m *memS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveReport(t *testing.T) {
	api := &memS3{}
	audit := &memAudit{}
	a := newReportArchiver(api, "polyarb-reports", audit)

	report := domain.ScanReport{
		StartedAt:     time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		Block:         68_000_000,
		Opportunities: []domain.Opportunity{{ID: "a", BuyVenue: "QuickSwap"}},
	}
	if err := a.Archive(context.Background(), report); err != nil {
		t.Fatalf("archive: %v", err)
	}

	want := "reports/2026-10-15/68000000-1792065600.json"
	if api.bucket != "polyarb-reports" || api.key != want {
		t.Fatalf("uploaded to %s/%s, want polyarb-reports/%s", api.bucket, api.key, want)
	}
	if api.contentType != "application/json" {
		t.Fatalf("unexpected content type %q", api.contentType)
	}
	var got domain.ScanReport
	if err := json.Unmarshal(api.body, &got); err != nil {
		t.Fatalf("decode uploaded report: %v", err)
	}
	if got.Block != report.Block || len(got.Opportunities) != 1 || got.Opportunities[0].ID != "a" {
		t.Fatalf("unexpected uploaded report %+v", got)
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.report" {
		t.Fatalf("expected one audit event, got %v", audit.events)
	}
}

func TestArchiveFailureSkipsAudit(t *testing.T) {
	api := &memS3{err: errors.New("access denied")}
	audit := &memAudit{}
	a := newReportArchiver(api, "polyarb-reports", audit)

	err := a.Archive(context.Background(), domain.ScanReport{StartedAt: time.Unix(0, 0), Block: 1})
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("expected upload error, got %v", err)
	}
	if len(audit.events) != 0 {
		t.Fatalf("failed upload must not be audited, got %v", audit.events)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"http://localhost:9000", true, "http://localhost:9000"},
		{"minio.local", false, "http://minio.local"},
		{"s3.example.com", true, "https://s3.example.com"},
	}
	for _, c := range cases {
		if got := normaliseEndpoint(c.in, c.useSSL); got != c.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", c.in, c.useSSL, got, c.want)
		}
	}
}
