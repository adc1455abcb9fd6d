package state

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
)

// s3Backend stores state in an S3 object and serializes writers through
// a DynamoDB lock item keyed by the state object key.
type s3Backend struct {
	bucket      string
	key         string
	region      string
	lockTable   string
	encrypt     bool
	environment string

	s3Client *s3.Client
	dbClient *dynamodb.Client
	lockID   string
}

func newS3Backend(ctx context.Context, settings map[string]string, environment string) (Backend, error) {
	bucket := settings["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 backend requires 'bucket' setting")
	}

	key := settings["key"]
	if key == "" {
		key = fmt.Sprintf("shiplift/%s/state.json", environment)
	}
	region := settings["region"]
	if region == "" {
		region = "us-east-1"
	}

	b := &s3Backend{
		bucket:      bucket,
		key:         key,
		region:      region,
		lockTable:   settings["lock_table"],
		encrypt:     settings["encrypt"] == "true",
		environment: environment,
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile := settings["profile"]; profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config for state backend: %w", err)
	}

	b.s3Client = s3.NewFromConfig(cfg)
	if b.lockTable != "" {
		b.dbClient = dynamodb.NewFromConfig(cfg)
	}

	return b, nil
}

func (b *s3Backend) Read(ctx context.Context) (*ir.State, error) {
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if apperrors.As(err, &nsk) {
			return ir.NewState(b.environment), nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStateRead,
			fmt.Sprintf("failed to read state from s3://%s/%s", b.bucket, b.key)).
			WithResource(b.environment).WithOperation("read")
	}
	defer result.Body.Close()

	raw, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStateRead, "failed to read state object body").
			WithResource(b.environment).WithOperation("read")
	}

	raw, err = Decrypt(raw)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStateRead, "failed to decrypt remote state").
			WithResource(b.environment).WithOperation("read")
	}

	return unmarshalState(raw)
}

func (b *s3Backend) Write(ctx context.Context, state *ir.State) error {
	data, err := marshalState(state)
	if err != nil {
		return err
	}
	data, err = Encrypt(data)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStateWrite, "failed to encrypt state").
			WithResource(b.environment).WithOperation("write")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Body:   bytes.NewReader(data),
	}
	if b.encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := b.s3Client.PutObject(ctx, input); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStateWrite,
			fmt.Sprintf("failed to write state to s3://%s/%s", b.bucket, b.key)).
			WithResource(b.environment).WithOperation("write")
	}
	return nil
}

func (b *s3Backend) Lock(ctx context.Context) error {
	if b.dbClient == nil {
		// No lock table configured: single-writer discipline is on the
		// operator.
		return nil
	}
	return acquireWithRetry(ctx, b.environment, b.tryLock)
}

func (b *s3Backend) tryLock(ctx context.Context) error {
	b.lockID = uuid.NewString()

	_, err := b.dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.lockTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: b.key},
			"Info":    &dbtypes.AttributeValueMemberS{Value: b.lockID},
			"Created": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		var ae smithy.APIError
		if apperrors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return &errLockHeld{holder: fmt.Sprintf("dynamodb:%s/%s", b.lockTable, b.key)}
		}
		return apperrors.Wrap(err, apperrors.CodeStateConflict, "failed to acquire state lock").
			WithResource(b.environment).WithOperation("lock")
	}
	return nil
}

func (b *s3Backend) Unlock(ctx context.Context) error {
	if b.dbClient == nil {
		return nil
	}

	_, err := b.dbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.lockTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: b.key},
		},
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStateConflict, "failed to release state lock").
			WithResource(b.environment).WithOperation("unlock")
	}
	return nil
}
