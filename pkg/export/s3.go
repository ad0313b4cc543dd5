// Package export publishes frozen results to S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dd0wney/cluso-hazard/pkg/aggregate"
	"github.com/dd0wney/cluso-hazard/pkg/hazard"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
)

var ErrNoBucket = errors.New("export needs a bucket")

// PutObjectAPI is the part of the S3 client the exporter uses
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ClientOptions configures an S3 client. Endpoint selects an S3-compatible
// service such as R2 or MinIO; static keys override the default chain.
type ClientOptions struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds a client from the default AWS configuration chain
func NewS3Client(ctx context.Context, opts ClientOptions) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Summary is the exported description of a result
type Summary struct {
	CalculationID     string                `json:"calc_id"`
	Kind              string                `json:"kind"`
	Digest            string                `json:"digest"`
	SiteIDs           []int                 `json:"site_ids"`
	InvestigationTime float64               `json:"investigation_time"`
	NumTasks          int                   `json:"num_tasks"`
	EffRuptures       map[int]int           `json:"eff_ruptures"`
	Realizations      []RealizationEntry    `json:"realizations"`
	Statistics        *aggregate.Statistics `json:"statistics,omitempty"`
	IMTLs             []hazard.IMTLevels    `json:"imtls,omitempty"`
}

// RealizationEntry points at the object of one realization
type RealizationEntry struct {
	Ordinal int     `json:"ordinal"`
	Name    string  `json:"name"`
	Weight  float64 `json:"weight"`
	Key     string  `json:"key"`
}

// S3Exporter writes one object per realization plus summary.json under
// <prefix>/<calc id>/
type S3Exporter struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger logging.Logger
}

// NewS3Exporter creates an exporter writing to bucket under prefix
func NewS3Exporter(client PutObjectAPI, bucket, prefix string, logger logging.Logger) (*S3Exporter, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &S3Exporter{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With(logging.Component("s3-export"), logging.String("bucket", bucket)),
	}, nil
}

// RealizationKey returns the object key of one realization
func (e *S3Exporter) RealizationKey(calcID string, ordinal int) string {
	return path.Join(e.prefix, calcID, fmt.Sprintf("rlz-%03d.json", ordinal))
}

// SummaryKey returns the object key of the summary
func (e *S3Exporter) SummaryKey(calcID string) string {
	return path.Join(e.prefix, calcID, "summary.json")
}

// Export uploads a frozen result and returns the written keys. The summary
// is written last, so its presence means the export is complete.
func (e *S3Exporter) Export(ctx context.Context, res *aggregate.AggregateResult) ([]string, error) {
	logger := e.logger.With(logging.CalculationID(res.CalculationID))
	sum := Summary{
		CalculationID:     res.CalculationID,
		Kind:              string(res.Kind),
		Digest:            res.Digest,
		SiteIDs:           res.SiteIDs,
		InvestigationTime: res.InvestigationTime,
		NumTasks:          res.NumTasks,
		EffRuptures:       res.EffRuptures,
		Statistics:        res.Statistics,
		IMTLs:             res.IMTLs,
	}

	var keys []string
	for i := range res.Realizations {
		rlz := &res.Realizations[i]
		key := e.RealizationKey(res.CalculationID, rlz.Ordinal)
		if err := e.put(ctx, key, rlz); err != nil {
			return keys, err
		}
		keys = append(keys, key)
		sum.Realizations = append(sum.Realizations, RealizationEntry{
			Ordinal: rlz.Ordinal, Name: rlz.Name, Weight: rlz.Weight, Key: key,
		})
	}

	key := e.SummaryKey(res.CalculationID)
	if err := e.put(ctx, key, &sum); err != nil {
		return keys, err
	}
	keys = append(keys, key)
	logger.Info("result exported", logging.Count(len(keys)), logging.String("prefix", path.Join(e.prefix, res.CalculationID)))
	return keys, nil
}

func (e *S3Exporter) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", e.bucket, key, err)
	}
	return nil
}
