package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/logger"
)

// S3API is the subset of the S3 client used by the archiver.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// RecordArchive is the JSON document written for a deleted campaign.
type RecordArchive struct {
	CampaignID string                  `json:"campaign_id"`
	ArchivedAt time.Time               `json:"archived_at"`
	Count      int                     `json:"count"`
	Records    []domain.DeliveryRecord `json:"records"`
}

// S3Archiver writes a campaign's delivery records to S3.
type S3Archiver struct {
	client S3API
	bucket string
	prefix string
	clock  clockwork.Clock
}

// NewS3Archiver creates an archiver writing under prefix in bucket. A nil
// clock uses the wall clock.
func NewS3Archiver(client S3API, bucket, prefix string, clock clockwork.Clock) *S3Archiver {
	if prefix == "" {
		prefix = "campaigns"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, clock: clock}
}

// ArchiveRecords writes records to {prefix}/{campaignID}/records-{timestamp}.json
// and returns the object key.
func (a *S3Archiver) ArchiveRecords(ctx context.Context, campaignID string, records []domain.DeliveryRecord) (string, error) {
	now := a.clock.Now().UTC()
	if records == nil {
		records = []domain.DeliveryRecord{}
	}
	doc := RecordArchive{CampaignID: campaignID, ArchivedAt: now, Count: len(records), Records: records}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshaling archive: %w", err)
	}

	key := path.Join(a.prefix, campaignID, fmt.Sprintf("records-%s.json", now.Format("20060102T150405Z")))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("putting object to S3 bucket %s: %w", a.bucket, err)
	}
	logger.Info("campaign records archived", "campaign_id", campaignID, "records", len(records), "key", key)
	return key, nil
}

// LoadArchive reads an archive written by ArchiveRecords.
func (a *S3Archiver) LoadArchive(ctx context.Context, key string) (*RecordArchive, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object: %w", err)
	}
	var doc RecordArchive
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling archive: %w", err)
	}
	return &doc, nil
}
