package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/gophvault/internal/common"
	sc "github.com/dmitrijs2005/gophvault/internal/server/config"
)

const presignExpiry = 15 * time.Minute

// objectAPI is the subset of *s3.Client used by S3.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newObjectAPI = func(c *s3.Client) objectAPI {
		return c
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3 stores objects under the key {owner_id}/{filename} in a single bucket.
// Clients are created lazily on first use.
type S3 struct {
	config *sc.Config

	once    sync.Once
	initErr error
	objects objectAPI
	presign *s3.PresignClient
}

func NewS3(config *sc.Config) *S3 {
	return &S3{config: config}
}

func (s *S3) init(ctx context.Context) error {
	s.once.Do(func() {
		// The result is cached for the life of the store, so it must not
		// depend on the first caller's cancellation.
		cfg, err := loadDefaultAWSConfig(context.WithoutCancel(ctx),
			config.WithRegion(s.config.S3Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				s.config.S3RootUser,
				s.config.S3RootPassword,
				"",
			)))
		if err != nil {
			s.initErr = fmt.Errorf("aws config: %w", err)
			return
		}

		client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
			o.UsePathStyle = true
		})

		s.objects = newObjectAPI(client)
		s.presign = newS3PresignClient(client)
	})
	return s.initErr
}

func (s *S3) Dir(ownerID int64) string {
	return strconv.FormatInt(ownerID, 10)
}

func (s *S3) key(ownerID int64, filename string) (string, error) {
	if err := checkName(filename); err != nil {
		return "", err
	}
	return path.Join(s.Dir(ownerID), filename), nil
}

func (s *S3) Put(ctx context.Context, ownerID int64, filename string, data []byte) error {
	key, err := s.key(ownerID, filename)
	if err != nil {
		return err
	}
	if err := s.init(ctx); err != nil {
		return err
	}

	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

// Remove deletes the object; S3 treats a missing key as success.
func (s *S3) Remove(ctx context.Context, ownerID int64, filename string) error {
	key, err := s.key(ownerID, filename)
	if err != nil {
		return err
	}
	if err := s.init(ctx); err != nil {
		return err
	}

	if _, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (s *S3) Open(ctx context.Context, ownerID int64, filename string) (io.ReadCloser, error) {
	key, err := s.key(ownerID, filename)
	if err != nil {
		return nil, err
	}
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	out, err := s.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	return out.Body, nil
}

// PresignGet returns a GET URL valid for presignExpiry.
func (s *S3) PresignGet(ctx context.Context, ownerID int64, filename string) (string, error) {
	key, err := s.key(ownerID, filename)
	if err != nil {
		return "", err
	}
	if err := s.init(ctx); err != nil {
		return "", err
	}

	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
