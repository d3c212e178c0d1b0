package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/studio-automation/internal/domain"
)

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
	put     *s3.PutObjectInput
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.put = in
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestArchiveRecordsRoundTrip(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 4, 10, 10, 30, 5, 0, time.UTC)
	fake := newFakeS3()
	a := NewS3Archiver(fake, "studio-archive", "", clockwork.NewFakeClockAt(at))

	recs := []domain.DeliveryRecord{
		{ID: "r1", CampaignID: "c1", UserID: "u1", StepNumber: 1, Status: domain.DeliverySent},
		{ID: "r2", CampaignID: "c1", UserID: "u1", StepNumber: 2, Status: domain.DeliveryScheduled},
	}
	key, err := a.ArchiveRecords(ctx, "c1", recs)
	require.NoError(t, err)
	assert.Equal(t, "campaigns/c1/records-20260410T103005Z.json", key)
	assert.Equal(t, "application/json", aws.ToString(fake.put.ContentType))

	doc, err := a.LoadArchive(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "c1", doc.CampaignID)
	assert.Equal(t, 2, doc.Count)
	assert.True(t, doc.ArchivedAt.Equal(at))
	require.Len(t, doc.Records, 2)
	assert.Equal(t, domain.DeliveryScheduled, doc.Records[1].Status)
}

func TestArchiveEmptyCampaign(t *testing.T) {
	fake := newFakeS3()
	a := NewS3Archiver(fake, "b", "archive", clockwork.NewFakeClock())
	key, err := a.ArchiveRecords(context.Background(), "c9", nil)
	require.NoError(t, err)
	assert.Contains(t, key, "archive/c9/records-")

	doc, err := a.LoadArchive(context.Background(), key)
	require.NoError(t, err)
	assert.NotNil(t, doc.Records)
	assert.Zero(t, doc.Count)
}

func TestArchivePutFailure(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("AccessDenied")
	a := NewS3Archiver(fake, "b", "", nil)
	_, err := a.ArchiveRecords(context.Background(), "c1", nil)
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestLoadArchiveMissing(t *testing.T) {
	a := NewS3Archiver(newFakeS3(), "b", "", nil)
	_, err := a.LoadArchive(context.Background(), "nope")
	assert.Error(t, err)
}

func TestLoadAWSConfig(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), AWSOptions{Region: "eu-west-1", AccessKey: "AKID", SecretKey: "secret", Endpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "http://localhost:4566", aws.ToString(cfg.BaseEndpoint))

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
}
