// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bureau-foundation/artefacta/lib/artifact"
	"github.com/bureau-foundation/artefacta/lib/version"
)

// S3Options configures access to an S3-compatible endpoint. Empty
// credentials fall back to the AWS_* and MINIO_* environment
// variables.
type S3Options struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	// Insecure selects plain HTTP.
	Insecure bool `yaml:"insecure"`

	// MaxBytesPerSecond throttles transfers in each direction. Zero
	// means unlimited.
	MaxBytesPerSecond int64 `yaml:"max_bytes_per_second"`
}

// S3Location is a parsed s3:// URL.
type S3Location struct {
	Bucket   string
	Endpoint string
	Prefix   string
	Region   string
	Insecure bool
}

// ParseS3URL parses "s3://<bucket>.<endpoint>[/<prefix>][?region=R&insecure=true]".
// The bucket is everything before the first dot of the host; the rest
// of the host, including any port, is the endpoint.
func ParseS3URL(raw string) (S3Location, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return S3Location{}, fmt.Errorf("parsing store URL %q: %w", raw, err)
	}
	if parsed.Scheme != "s3" {
		return S3Location{}, fmt.Errorf("store URL %q: scheme must be s3", raw)
	}
	bucket, endpoint, ok := strings.Cut(parsed.Host, ".")
	if !ok || bucket == "" || endpoint == "" {
		return S3Location{}, fmt.Errorf("store URL %q: host must be <bucket>.<endpoint>", raw)
	}
	location := S3Location{
		Bucket:   bucket,
		Endpoint: endpoint,
		Prefix:   strings.Trim(parsed.Path, "/"),
		Region:   parsed.Query().Get("region"),
	}
	if insecure := parsed.Query().Get("insecure"); insecure != "" {
		location.Insecure, err = strconv.ParseBool(insecure)
		if err != nil {
			return S3Location{}, fmt.Errorf("store URL %q: insecure: %w", raw, err)
		}
	}
	return location, nil
}

// S3 is a Store backed by a prefix of an S3 bucket. Only objects
// directly under the prefix are listed.
type S3 struct {
	client   *minio.Client
	location S3Location
	throttle *throttle
}

// NewS3FromURL parses raw with ParseS3URL and connects. Options
// override the URL's region and insecure settings when set.
func NewS3FromURL(ctx context.Context, raw string, options S3Options) (*S3, error) {
	location, err := ParseS3URL(raw)
	if err != nil {
		return nil, err
	}
	return NewS3(ctx, location, options)
}

// NewS3 returns an S3 store. No request is made until first use.
func NewS3(_ context.Context, location S3Location, options S3Options) (*S3, error) {
	if options.Region != "" {
		location.Region = options.Region
	}
	if options.Insecure {
		location.Insecure = true
	}

	var creds *credentials.Credentials
	if options.AccessKeyID != "" {
		creds = credentials.NewStaticV4(options.AccessKeyID, options.SecretAccessKey, options.SessionToken)
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
		})
	}

	client, err := minio.New(location.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: !location.Insecure,
		Region: location.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating S3 client for %s: %w", location.Endpoint, err)
	}
	client.SetAppInfo("artefacta", version.Short())

	return &S3{
		client:   client,
		location: location,
		throttle: newThrottle(options.MaxBytesPerSecond),
	}, nil
}

func (s *S3) String() string {
	if s.location.Prefix == "" {
		return "s3://" + s.location.Bucket
	}
	return "s3://" + s.location.Bucket + "/" + s.location.Prefix
}

func (s *S3) key(name string) string {
	if s.location.Prefix == "" {
		return name
	}
	return s.location.Prefix + "/" + name
}

func (s *S3) List(ctx context.Context) ([]Entry, error) {
	prefix := ""
	if s.location.Prefix != "" {
		prefix = s.location.Prefix + "/"
	}
	var entries []Entry
	for object := range s.client.ListObjects(ctx, s.location.Bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if object.Err != nil {
			return nil, classifyS3("list", s.String(), object.Err)
		}
		name := strings.TrimPrefix(object.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		entries = append(entries, Entry{Name: name, Size: object.Size})
	}
	return entries, nil
}

func (s *S3) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.location.Bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyS3("get", name, err)
	}
	// GetObject is lazy; Stat surfaces a missing key now rather than
	// on first read.
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, classifyS3("get", name, err)
	}
	return &s3Reader{
		ctx:    ctx,
		name:   name,
		object: object,
		r:      s.throttle.reader(ctx, object),
	}, nil
}

func (s *S3) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.location.Bucket, s.key(name), s.throttle.reader(ctx, r), size,
		minio.PutObjectOptions{
			ContentType:    "application/octet-stream",
			SendContentMd5: true,
		})
	if err != nil {
		return classifyS3("put", name, err)
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.location.Bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil {
		classified := classifyS3("delete", name, err)
		if errors.Is(classified, artifact.ErrNotFound) {
			return nil
		}
		return classified
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.location.Bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		classified := classifyS3("stat", name, err)
		if errors.Is(classified, artifact.ErrNotFound) {
			return false, nil
		}
		return false, classified
	}
	return true, nil
}

// classifyS3 maps a minio error to ErrNotFound or ErrNetwork.
// Cancellation passes through unchanged.
func classifyS3(op, name string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	response := minio.ToErrorResponse(err)
	switch {
	case response.Code == "NoSuchKey", response.Code == "NotFound", response.Code == "NoSuchBucket",
		response.StatusCode == http.StatusNotFound:
		return artifact.NewError(artifact.ErrNotFound, op, name, err)
	default:
		return artifact.NewError(artifact.ErrNetwork, op, name, err)
	}
}

type s3Reader struct {
	ctx    context.Context
	name   string
	object *minio.Object
	r      io.Reader
}

func (s *s3Reader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = classifyS3("read", s.name, err)
	}
	return n, err
}

func (s *s3Reader) Close() error { return s.object.Close() }
