// Package audit archives administrative overrides on donation records.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"bloodbridge/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

type Sink interface {
	Record(ctx context.Context, entry *types.AuditEntry) error
}

type LogSink struct {
	logger logrus.FieldLogger
}

func NewLogSink(logger logrus.FieldLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, entry *types.AuditEntry) error {
	s.logger.WithFields(logrus.Fields{
		"audit_id":  entry.ID,
		"record_id": entry.RecordID,
		"donor_id":  entry.DonorID,
		"action":    entry.Action,
		"actor":     entry.Actor,
		"reason":    entry.Reason,
	}).Warn("donation record override")
	return nil
}

type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes each entry as a JSON object keyed by donor, record and id.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
}

func NewS3Sink(client PutObjectAPI, bucket string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: "audit"}
}

func (s *S3Sink) Key(entry *types.AuditEntry) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s.json",
		s.prefix, entry.DonorID, entry.RecordID,
		entry.OccurredAt.UTC().Format("20060102T150405Z"), entry.ID)
}

func (s *S3Sink) Record(ctx context.Context, entry *types.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(entry)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive audit entry %s: %w", entry.ID, err)
	}

	return nil
}

// Multi records to every sink and returns the first error.
type Multi []Sink

func (m Multi) Record(ctx context.Context, entry *types.AuditEntry) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
