package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ReportArchiver stores reconciliation reports as JSON objects under
// reconciliation/<period>.json. Re-archiving a period overwrites the object.
type S3ReportArchiver struct {
	client *s3.Client
	bucket string
}

// NewS3ReportArchiver creates a new S3ReportArchiver.
func NewS3ReportArchiver(client *s3.Client, bucket string) *S3ReportArchiver {
	return &S3ReportArchiver{client: client, bucket: bucket}
}

func (a *S3ReportArchiver) Archive(ctx context.Context, report *ReconciliationReport) error {
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reconciliation report: %w", err)
	}
	key := fmt.Sprintf("reconciliation/%s.json", report.Period)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive reconciliation report %s: %w", key, err)
	}
	return nil
}
