package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/coach-onboarding/internal/config"
	"github.com/coach-onboarding/internal/domain"
)

// PutObjectAPI is the subset of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient creates the archive S3 client. LocalStack needs path-style
// addressing, so a custom endpoint switches it on.
func NewClient(cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := cfg.AWS(context.Background(), cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, localEndpoint(cfg.AWSEndpointURL)), nil
}

func localEndpoint(url string) func(*s3.Options) {
	return func(o *s3.Options) {
		if url != "" {
			o.BaseEndpoint = aws.String(url)
			o.UsePathStyle = true
		}
	}
}

// Archiver writes onboarding session records to S3 before they are removed.
// The step data is copied as stored, so encrypted payloads stay encrypted.
type Archiver struct {
	client PutObjectAPI
	bucket string
	now    func() time.Time
}

func NewArchiver(client PutObjectAPI, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket, now: time.Now}
}

type archivedSession struct {
	domain.OnboardingSession
	StepData   string    `json:"step_data"`
	Reason     string    `json:"reason"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Archive stores sess under onboarding-sessions/<email>/<session_id>.json.
func (a *Archiver) Archive(ctx context.Context, sess *domain.OnboardingSession, reason string) error {
	body, err := json.Marshal(archivedSession{
		OnboardingSession: *sess,
		StepData:          sess.StepData,
		Reason:            reason,
		ArchivedAt:        a.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal archived session: %w", err)
	}
	return a.upload(ctx, Key(sess), bytes.NewReader(body), "application/json")
}

// Key returns the object key a session is archived under.
func Key(sess *domain.OnboardingSession) string {
	return fmt.Sprintf("onboarding-sessions/%s/%s.json", sess.Email, sess.SessionID)
}

func (a *Archiver) upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}
