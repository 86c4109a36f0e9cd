package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/fraclad/s3-insight/types"
)

// DefaultRegion is used when no region is configured and for buckets whose
// location constraint is empty.
const DefaultRegion = "us-east-1"

// Options selects credentials and endpoint for the client
type Options struct {
	Profile         string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// Client wraps the AWS S3 client with configuration. Object listings are
// issued against a client for the bucket's own region; those clients are
// cached per region.
type Client struct {
	S3     *s3.Client
	Config aws.Config

	opts Options

	mu       sync.RWMutex
	regional map[string]*s3.Client
}

// NewClient creates a new AWS S3 client with the specified options. The SDK's
// own retries are disabled: page fetches are retried by Backoff so that rate
// limiting and transient failures follow one policy.
func NewClient(ctx context.Context, o Options) (*Client, error) {
	var opts []func(*config.LoadOptions) error

	if o.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(o.Profile))
	}

	if o.Region != "" {
		opts = append(opts, config.WithRegion(o.Region))
	}

	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		))
	}

	opts = append(opts, config.WithRetryMaxAttempts(1))

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	return NewClientFromConfig(cfg, o), nil
}

// NewClientFromConfig creates a client from an already loaded AWS config.
func NewClientFromConfig(cfg aws.Config, o Options) *Client {
	c := &Client{
		Config:   cfg,
		opts:     o,
		regional: make(map[string]*s3.Client),
	}
	c.S3 = s3.NewFromConfig(cfg, c.s3Options(""))
	return c
}

func (c *Client) s3Options(region string) func(*s3.Options) {
	return func(so *s3.Options) {
		if region != "" {
			so.Region = region
		}
		if c.opts.Endpoint != "" {
			so.BaseEndpoint = aws.String(c.opts.Endpoint)
		}
		so.UsePathStyle = c.opts.PathStyle
		so.RetryMaxAttempts = 1
	}
}

// clientFor returns the S3 client for region, creating it on first use.
func (c *Client) clientFor(region string) *s3.Client {
	if region == "" || region == c.Config.Region {
		return c.S3
	}

	c.mu.RLock()
	client, ok := c.regional[region]
	c.mu.RUnlock()
	if ok {
		return client
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.regional[region]; ok {
		return client
	}
	client = s3.NewFromConfig(c.Config, c.s3Options(region))
	c.regional[region] = client
	return client
}

// ListBuckets enumerates every bucket owned by the account. Region is filled
// in when the provider reports it alongside the listing.
func (c *Client) ListBuckets(ctx context.Context) ([]types.BucketMeta, error) {
	var buckets []types.BucketMeta

	paginator := s3.NewListBucketsPaginator(c.S3, &s3.ListBucketsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if IsAuthError(err) {
				return nil, &types.AuthError{Op: "ListBuckets", Err: err}
			}
			return nil, &types.APIError{Op: "ListBuckets", Err: err}
		}
		for _, b := range page.Buckets {
			buckets = append(buckets, types.BucketMeta{
				Name:         aws.ToString(b.Name),
				Region:       aws.ToString(b.BucketRegion),
				CreationDate: aws.ToTime(b.CreationDate).UTC(),
			})
		}
	}

	return buckets, nil
}

// BucketRegion retrieves the region for a specific bucket
func (c *Client) BucketRegion(ctx context.Context, bucket string) (string, error) {
	result, err := c.S3.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if IsAuthError(err) {
			return "", &types.AuthError{Op: "GetBucketLocation", Err: err}
		}
		return "", &types.APIError{Op: "GetBucketLocation", Bucket: bucket, Err: err}
	}

	return NormalizeRegion(string(result.LocationConstraint)), nil
}

// NormalizeRegion maps legacy location constraints to region codes.
func NormalizeRegion(constraint string) string {
	switch constraint {
	case "":
		return DefaultRegion
	case "EU":
		return "eu-west-1"
	default:
		return constraint
	}
}

// PageRequest identifies one page of an object listing
type PageRequest struct {
	Bucket  string
	Region  string
	Token   *string
	MaxKeys int32
}

// Page is one normalized page of an object listing
type Page struct {
	Objects   []types.ObjectRecord
	NextToken *string
	Truncated bool
}

// ListPage fetches a single page of the bucket's listing. Errors are returned
// as the SDK reports them; callers classify them with IsRetryable and
// IsAuthError.
func (c *Client) ListPage(ctx context.Context, req PageRequest) (*Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:            aws.String(req.Bucket),
		ContinuationToken: req.Token,
	}
	if req.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(req.MaxKeys)
	}

	result, err := c.clientFor(req.Region).ListObjectsV2(ctx, input)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Objects:   make([]types.ObjectRecord, 0, len(result.Contents)),
		Truncated: aws.ToBool(result.IsTruncated),
		NextToken: result.NextContinuationToken,
	}
	for _, obj := range result.Contents {
		page.Objects = append(page.Objects, types.NewObjectRecord(
			req.Bucket,
			aws.ToString(obj.Key),
			aws.ToInt64(obj.Size),
			string(obj.StorageClass),
			aws.ToTime(obj.LastModified),
		))
	}
	if page.Truncated && page.NextToken == nil {
		return nil, fmt.Errorf("truncated listing of bucket %s returned no continuation token", req.Bucket)
	}

	return page, nil
}

// AccountID returns the account that owns the credentials.
func (c *Client) AccountID(ctx context.Context) (string, error) {
	stsClient := sts.NewFromConfig(c.Config)
	out, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		if IsAuthError(err) {
			return "", &types.AuthError{Op: "GetCallerIdentity", Err: err}
		}
		return "", &types.APIError{Op: "GetCallerIdentity", Err: err}
	}
	return aws.ToString(out.Account), nil
}
