//go:build integration

package publish

import (
	"context"
	"testing"

	_ "gocloud.dev/blob/s3blob"

	"github.com/craftxbox/wplace-downloader/internal/testutils"
)

func TestIntegrationPublishToMinio(t *testing.T) {
	ctx := context.Background()

	store := testutils.StartSnapshotStore(t, ctx, "wplace-snapshots")

	pub, err := Open(ctx, store.BucketURL, Options{Prefix: "wplace"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pub.Close()

	content := testutils.SolidPNG(t, 16, testutils.CoordColor(3, 4))
	res := testResult(t, content)

	key, err := pub.Publish(ctx, res)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	bucket := store.Bucket(t, ctx)

	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if len(data) != len(content) {
		t.Errorf("stored %d bytes, want %d", len(data), len(content))
	}

	m, err := pub.Manifest(ctx, key)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if m.Size != int64(len(content)) {
		t.Errorf("manifest size = %d, want %d", m.Size, len(content))
	}
}
