package backup

import (
	"context"
	"strings"
	"testing"

	"github.com/tdamd/pairctl/internal/testutil/testlog"
)

func TestNopUploaderDiscards(t *testing.T) {
	testlog.Start(t)
	locator, err := Nop{}.Upload(context.Background(), strings.NewReader(`{"a":1}`), "x.json")
	if err != nil {
		t.Fatalf("nop upload: %v", err)
	}
	if locator != "" {
		t.Fatalf("locator %q", locator)
	}
}

func TestS3ConfigEnabled(t *testing.T) {
	testlog.Start(t)
	if (S3Config{}).Enabled() {
		t.Fatalf("empty config reported enabled")
	}
	cfg := S3Config{
		Endpoint:  "s3.example.com",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "backups",
	}
	if !cfg.Enabled() {
		t.Fatalf("full config reported disabled")
	}
}

func TestNewS3UploaderRejectsIncompleteConfig(t *testing.T) {
	testlog.Start(t)
	if _, err := NewS3Uploader(S3Config{Endpoint: "s3.example.com"}); err == nil {
		t.Fatalf("expected error for config without bucket")
	}
}
