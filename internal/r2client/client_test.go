package r2client

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

func TestCompressDecompress(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "advisor.db")
	compressedPath := filepath.Join(tmpDir, "advisor.db.zst")
	restoredPath := filepath.Join(tmpDir, "restored.db")

	// 1MB of patterned bytes, roughly the shape of a small SQLite file.
	testData := make([]byte, 1024*1024)
	for i := range testData {
		testData[i] = byte(i % 251)
	}
	if err := os.WriteFile(srcPath, testData, 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if err := CompressFile(srcPath, compressedPath); err != nil {
		t.Fatalf("CompressFile failed: %v", err)
	}
	srcInfo, _ := os.Stat(srcPath)
	compressedInfo, err := os.Stat(compressedPath)
	if err != nil {
		t.Fatalf("Compressed file not created: %v", err)
	}
	if compressedInfo.Size() >= srcInfo.Size() {
		t.Errorf("compressed size %d not smaller than %d", compressedInfo.Size(), srcInfo.Size())
	}

	f, err := os.Open(compressedPath)
	if err != nil {
		t.Fatalf("Failed to open compressed file: %v", err)
	}
	defer f.Close()

	if err := DecompressStream(f, restoredPath); err != nil {
		t.Fatalf("DecompressStream failed: %v", err)
	}
	restored, err := os.ReadFile(restoredPath)
	if err != nil {
		t.Fatalf("Failed to read restored file: %v", err)
	}
	if !bytes.Equal(restored, testData) {
		t.Error("restored data does not match original")
	}
}

func TestCompressFile_Errors(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	if err := CompressFile("/nonexistent/path/file.db", filepath.Join(tmpDir, "out.zst")); err == nil {
		t.Error("Expected error for non-existent source file")
	}

	srcPath := filepath.Join(tmpDir, "source.db")
	if err := os.WriteFile(srcPath, []byte("test"), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if err := CompressFile(srcPath, "/nonexistent/dir/out.zst"); err == nil {
		t.Error("Expected error for invalid destination path")
	}
}

func TestDecompressStream_InvalidData(t *testing.T) {
	t.Parallel()

	err := DecompressStream(strings.NewReader("this is not zstd compressed data"), filepath.Join(t.TempDir(), "out.db"))
	if err == nil {
		t.Error("Expected error for invalid zstd data")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := Config{AccountID: "acct", AccessKeyID: "key", SecretKey: "secret", BucketName: "bucket"}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid with account id", mutate: func(*Config) {}},
		{name: "explicit endpoint", mutate: func(c *Config) { c.AccountID = ""; c.Endpoint = "http://localhost:9000" }},
		{name: "missing account and endpoint", mutate: func(c *Config) { c.AccountID = "" }, wantErr: "account id or endpoint"},
		{name: "missing access key", mutate: func(c *Config) { c.AccessKeyID = "" }, wantErr: "access key id"},
		{name: "missing secret and bucket", mutate: func(c *Config) { c.SecretKey = ""; c.BucketName = "" }, wantErr: "secret key, bucket name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}

	if got := valid.endpoint(); got != "https://acct.r2.cloudflarestorage.com" {
		t.Errorf("endpoint() = %q", got)
	}
}

func responseError(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      errors.New("api error"),
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		err          error
		notFound     bool
		precondition bool
	}{
		{name: "no such key", err: &types.NoSuchKey{}, notFound: true},
		{name: "head not found", err: fmt.Errorf("wrapped: %w", &types.NotFound{}), notFound: true},
		{name: "generic 404 code", err: &smithy.GenericAPIError{Code: "NotFound"}, notFound: true},
		{name: "http 404", err: responseError(http.StatusNotFound), notFound: true},
		{name: "precondition code", err: &smithy.GenericAPIError{Code: "PreconditionFailed"}, precondition: true},
		{name: "http 412", err: responseError(http.StatusPreconditionFailed), precondition: true},
		{name: "server error", err: responseError(http.StatusInternalServerError)},
		{name: "plain error", err: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isNotFound(tt.err); got != tt.notFound {
				t.Errorf("isNotFound() = %v, want %v", got, tt.notFound)
			}
			if got := isPreconditionFailed(tt.err); got != tt.precondition {
				t.Errorf("isPreconditionFailed() = %v, want %v", got, tt.precondition)
			}
		})
	}
}

func TestTrimETag(t *testing.T) {
	t.Parallel()

	etag := `"abc123"`
	if got := trimETag(&etag); got != "abc123" {
		t.Errorf("trimETag() = %q", got)
	}
	if got := trimETag(nil); got != "" {
		t.Errorf("trimETag(nil) = %q", got)
	}
}
