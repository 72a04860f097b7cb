// Package archive ships a finished month's queue snapshots to long-term
// object storage and clears the hot copy. Meant to run from a scheduled
// subcommand shortly after the month rolls over.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/jonathan/content-pipeline/internal/jobstore"
)

// DefaultPrefix is where monthly bundles land in the bucket.
const DefaultPrefix = "monthly-queue-logs/"

// SnapshotSource reads and clears monthly queue snapshots.
type SnapshotSource interface {
	MonthlySnapshots(month string) ([]jobstore.Snapshot, error)
	ClearMonthlySnapshots(month string) error
}

// Bundle is the uploaded object: one month of job snapshots.
type Bundle struct {
	Month       string              `json:"month"`
	GeneratedAt string              `json:"generated_at_utc"`
	JobCount    int                 `json:"job_count"`
	Snapshots   []jobstore.Snapshot `json:"snapshots"`
}

// Archiver uploads monthly bundles to S3.
type Archiver struct {
	source SnapshotSource
	client s3iface.S3API
	bucket string
	prefix string
	clock  clock.Clock
}

// New builds an archiver over an AWS session.
func New(source SnapshotSource, region, bucket, prefix string) (*Archiver, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return NewWithClient(source, s3.New(sess), bucket, prefix, clock.C), nil
}

// NewWithClient builds an archiver over an existing client, for tests.
func NewWithClient(source SnapshotSource, client s3iface.S3API, bucket, prefix string, c clock.Clock) *Archiver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Archiver{source: source, client: client, bucket: bucket, prefix: prefix, clock: c}
}

// previousMonth returns the storage key ("2026-07") and the human label
// ("July_2026") of the month before now.
func previousMonth(now time.Time) (key, label string) {
	prev := now.UTC().AddDate(0, 0, -now.UTC().Day())
	return prev.Format("2006-01"), prev.Format("January_2006")
}

// ObjectKey renders the bucket key for a month label.
func (a *Archiver) ObjectKey(label string) string {
	return fmt.Sprintf("%s%s_QueueLogs.json", a.prefix, label)
}

// ArchivePreviousMonth bundles last month's snapshots, uploads them and
// clears the source list. Returns the object key and how many jobs were
// archived; a month with no snapshots uploads nothing.
func (a *Archiver) ArchivePreviousMonth(ctx context.Context) (string, int, error) {
	month, label := previousMonth(a.clock.Now())
	return a.archiveMonth(ctx, month, label)
}

func (a *Archiver) archiveMonth(ctx context.Context, month, label string) (string, int, error) {
	snaps, err := a.source.MonthlySnapshots(month)
	if err != nil {
		return "", 0, err
	}
	if len(snaps) == 0 {
		return "", 0, nil
	}

	bundle := Bundle{
		Month:       month,
		GeneratedAt: a.clock.Now().UTC().Format(time.RFC3339),
		JobCount:    len(snaps),
		Snapshots:   snaps,
	}
	body, err := json.Marshal(bundle)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal bundle: %w", err)
	}

	key := a.ObjectKey(label)
	_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	// Clear only after the upload is durable.
	if err := a.source.ClearMonthlySnapshots(month); err != nil {
		return key, len(snaps), fmt.Errorf("uploaded but failed to clear %s: %w", month, err)
	}
	return key, len(snaps), nil
}
