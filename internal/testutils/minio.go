//go:build integration

package testutils

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
)

const (
	snapshotUser     = "wplace"
	snapshotPassword = "wplace-snapshots"
)

// SnapshotStore is an S3-compatible bucket for merged snapshots, backed by
// a Minio container that is terminated when the test ends.
type SnapshotStore struct {
	// BucketURL opens the bucket with gocloud's s3blob driver.
	BucketURL string
}

// StartSnapshotStore starts Minio and creates bucket in it. The AWS
// credential variables are set for the duration of the test.
func StartSnapshotStore(t *testing.T, ctx context.Context, bucket string) *SnapshotStore {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     snapshotUser,
				"MINIO_ROOT_PASSWORD": snapshotPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate minio: %v", err)
		}
	})

	// The server image ships the mc client.
	mkBucket := fmt.Sprintf("mc alias set local http://127.0.0.1:9000 %s %s >/dev/null && mc mb --ignore-existing local/%s",
		snapshotUser, snapshotPassword, bucket)
	code, out, err := container.Exec(ctx, []string{"sh", "-c", mkBucket})
	if err != nil {
		t.Fatalf("create bucket %s: %v", bucket, err)
	}
	if code != 0 {
		msg, _ := io.ReadAll(out)
		t.Fatalf("create bucket %s: exit %d: %s", bucket, code, msg)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("minio host: %v", err)
	}
	port, err := container.MappedPort(ctx, "9000/tcp")
	if err != nil {
		t.Fatalf("minio port: %v", err)
	}

	t.Setenv("AWS_ACCESS_KEY_ID", snapshotUser)
	t.Setenv("AWS_SECRET_ACCESS_KEY", snapshotPassword)

	return &SnapshotStore{
		BucketURL: fmt.Sprintf("s3://%s?endpoint=http://%s:%s&use_path_style=true&disable_https=true&region=us-east-1",
			bucket, host, port.Port()),
	}
}

// Bucket opens the store's bucket; it is closed when the test ends.
func (s *SnapshotStore) Bucket(t *testing.T, ctx context.Context) *blob.Bucket {
	t.Helper()
	b, err := blob.OpenBucket(ctx, s.BucketURL)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}
