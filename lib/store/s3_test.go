// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/bureau-foundation/artefacta/lib/artifact"
)

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		input string
		want  S3Location
	}{
		{
			input: "s3://releases.s3.eu-central-1.amazonaws.com/app/linux",
			want:  S3Location{Bucket: "releases", Endpoint: "s3.eu-central-1.amazonaws.com", Prefix: "app/linux"},
		},
		{
			input: "s3://builds.localhost:9000?insecure=true&region=us-east-1",
			want:  S3Location{Bucket: "builds", Endpoint: "localhost:9000", Region: "us-east-1", Insecure: true},
		},
		{
			input: "s3://b.minio.internal/",
			want:  S3Location{Bucket: "b", Endpoint: "minio.internal"},
		},
	}
	for _, test := range tests {
		got, err := ParseS3URL(test.input)
		if err != nil {
			t.Errorf("ParseS3URL(%q): %v", test.input, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseS3URL(%q) = %+v, want %+v", test.input, got, test.want)
		}
	}
}

func TestParseS3URLRejectsInvalid(t *testing.T) {
	for _, input := range []string{
		"http://bucket.example.com/x",
		"s3://nobucketdot/x",
		"s3://.example.com/x",
		"s3://bucket.example.com/x?insecure=maybe",
	} {
		if _, err := ParseS3URL(input); err == nil {
			t.Errorf("ParseS3URL(%q) succeeded", input)
		}
	}
}

func TestS3KeysAndString(t *testing.T) {
	store, err := NewS3FromURL(context.Background(), "s3://releases.s3.example.com/app", S3Options{
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewS3FromURL: %v", err)
	}
	if got := store.key("1.0.build"); got != "app/1.0.build" {
		t.Errorf("key = %q", got)
	}
	if got := store.String(); got != "s3://releases/app" {
		t.Errorf("String = %q", got)
	}
}

func TestClassifyS3(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, artifact.ErrNotFound},
		{"bare 404", minio.ErrorResponse{StatusCode: http.StatusNotFound}, artifact.ErrNotFound},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, artifact.ErrNetwork},
		{"transport", errors.New("dial tcp: connection refused"), artifact.ErrNetwork},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := classifyS3("get", "1.0.build", test.err); !errors.Is(got, test.kind) {
				t.Errorf("classifyS3 = %v, want kind %v", got, test.kind)
			}
		})
	}

	if got := classifyS3("get", "x", context.Canceled); got != context.Canceled {
		t.Errorf("classifyS3(context.Canceled) = %v, want it unchanged", got)
	}
}

// fakeS3 serves the path-style subset of the S3 API the store uses:
// ListObjectsV2, GET/HEAD/PUT/DELETE of single objects.
type fakeS3 struct {
	bucket string

	mu        sync.Mutex
	objects   map[string][]byte
	md5Checks int
}

var fakeModTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// newFakeS3Store starts a fake bucket and returns an S3 store rooted
// at prefix inside it.
func newFakeS3Store(t *testing.T, prefix string) (*fakeS3, *S3) {
	t.Helper()
	fake := &fakeS3{bucket: "releases", objects: make(map[string][]byte)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	s3, err := NewS3(context.Background(), S3Location{
		Bucket:   fake.bucket,
		Endpoint: strings.TrimPrefix(server.URL, "http://"),
		Prefix:   prefix,
		Region:   "us-east-1",
		Insecure: true,
	}, S3Options{AccessKeyID: "test", SecretAccessKey: "test-secret"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	return fake, s3
}

func (f *fakeS3) set(key, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = []byte(content)
}

func (f *fakeS3) object(key string) (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.objects[key]), f.md5Checks
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case key == "" && r.Method == http.MethodGet && r.URL.Query().Has("location"):
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>`+
			`<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
	case key == "" && r.Method == http.MethodGet:
		f.list(w, r)
	case key == "":
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented")
	case r.Method == http.MethodGet, r.Method == http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("ETag", fakeETag(data))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, key, fakeModTime, bytes.NewReader(data))
	case r.Method == http.MethodPut:
		f.put(w, r, key)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented")
	}
}

func (f *fakeS3) put(w http.ResponseWriter, r *http.Request, key string) {
	var data []byte
	var err error
	if strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
		data, err = decodeAWSChunked(r.Body)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
		return
	}
	if digest := r.Header.Get("Content-Md5"); digest != "" {
		sum := md5.Sum(data)
		if base64.StdEncoding.EncodeToString(sum[:]) != digest {
			writeS3Error(w, http.StatusBadRequest, "BadDigest")
			return
		}
		f.md5Checks++
	}
	f.objects[key] = data
	w.Header().Set("ETag", fakeETag(data))
	w.WriteHeader(http.StatusOK)
}

type fakeListResult struct {
	XMLName        xml.Name           `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
	Name           string             `xml:"Name"`
	Prefix         string             `xml:"Prefix"`
	Delimiter      string             `xml:"Delimiter,omitempty"`
	KeyCount       int                `xml:"KeyCount"`
	MaxKeys        int                `xml:"MaxKeys"`
	IsTruncated    bool               `xml:"IsTruncated"`
	Contents       []fakeListObject   `xml:"Contents"`
	CommonPrefixes []fakeCommonPrefix `xml:"CommonPrefixes"`
}

type fakeListObject struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type fakeCommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

func (f *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	prefix, delimiter := query.Get("prefix"), query.Get("delimiter")
	result := fakeListResult{Name: f.bucket, Prefix: prefix, Delimiter: delimiter, MaxKeys: 1000}

	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if index := strings.Index(rest, delimiter); delimiter != "" && index >= 0 {
			common := prefix + rest[:index+len(delimiter)]
			if !slices.Contains(result.CommonPrefixes, fakeCommonPrefix{Prefix: common}) {
				result.CommonPrefixes = append(result.CommonPrefixes, fakeCommonPrefix{Prefix: common})
			}
			continue
		}
		data := f.objects[key]
		result.Contents = append(result.Contents, fakeListObject{
			Key:          key,
			LastModified: fakeModTime.Format(time.RFC3339),
			ETag:         fakeETag(data),
			Size:         int64(len(data)),
			StorageClass: "STANDARD",
		})
	}
	result.KeyCount = len(result.Contents) + len(result.CommonPrefixes)

	w.Header().Set("Content-Type", "application/xml")
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(result)
}

func fakeETag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

// decodeAWSChunked strips the aws-chunked framing SigV4 streaming
// uploads use over plain HTTP. Chunk signatures and trailers are
// ignored.
func decodeAWSChunked(body io.Reader) ([]byte, error) {
	reader := bufio.NewReader(body)
	var decoded bytes.Buffer
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeText, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeText, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return decoded.Bytes(), nil
		}
		if _, err := io.CopyN(&decoded, reader, size); err != nil {
			return nil, err
		}
		if _, err := reader.Discard(2); err != nil {
			return nil, err
		}
	}
}

func TestS3ListSkipsForeignKeys(t *testing.T) {
	fake, s3 := newFakeS3Store(t, "app")
	fake.set("app/1.0.build", "build")
	fake.set("app/nested/2.0.build", "nested")
	fake.set("other/3.0.build", "elsewhere")
	fake.set("application.build", "sibling prefix")

	entries, err := s3.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []Entry{{Name: "1.0.build", Size: 5}}; !slices.Equal(entries, want) {
		t.Errorf("List = %v, want %v", entries, want)
	}
}

func TestS3PutSendsContentMD5(t *testing.T) {
	fake, s3 := newFakeS3Store(t, "app")
	content := "patch bytes"
	if err := s3.Put(context.Background(), "1.0-1.1.patch", strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, md5Checks := fake.object("app/1.0-1.1.patch")
	if md5Checks != 1 {
		t.Errorf("Content-MD5 verified on %d uploads, want 1", md5Checks)
	}
	if got != content {
		t.Errorf("stored object = %q, want %q", got, content)
	}
}

func TestS3MissingObjects(t *testing.T) {
	_, s3 := newFakeS3Store(t, "")
	ctx := context.Background()

	if _, err := s3.Get(ctx, "9.9.build"); !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("Get: err = %v, want ErrNotFound", err)
	}
	if exists, err := s3.Exists(ctx, "9.9.build"); err != nil || exists {
		t.Errorf("Exists = %v, %v, want false, nil", exists, err)
	}
	if err := s3.Delete(ctx, "9.9.build"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}
