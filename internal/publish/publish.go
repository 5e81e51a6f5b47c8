package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/rs/zerolog"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/craftxbox/wplace-downloader/internal/downloader"
	"github.com/craftxbox/wplace-downloader/internal/logger"
)

var (
	// ErrNotMerged is returned for results without a merged image.
	ErrNotMerged = errors.New("publish: result has no merged image")

	// ErrNotFound is returned when no manifest exists for a key.
	ErrNotFound = errors.New("publish: not found")
)

// Manifest describes a published image.
type Manifest struct {
	Job         string    `json:"job"`
	RunID       string    `json:"run_id"`
	XStart      int       `json:"x_start"`
	YStart      int       `json:"y_start"`
	XEnd        int       `json:"x_end"`
	YEnd        int       `json:"y_end"`
	Saved       int       `json:"saved"`
	Empty       int       `json:"empty"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	StartedAt   time.Time `json:"started_at"`
	PublishedAt time.Time `json:"published_at"`
}

// Options configures a Publisher.
type Options struct {
	// Prefix is prepended to every key.
	Prefix string

	// Logger receives structured logs. Nil disables logging.
	Logger *zerolog.Logger

	// Now replaces the clock in tests.
	Now func() time.Time
}

// Publisher writes merged images to a bucket.
type Publisher struct {
	bucket *blob.Bucket
	owned  bool
	opts   Options
	log    *zerolog.Logger
}

// Open opens the bucket at bucketURL. The bucket is closed by Close.
func Open(ctx context.Context, bucketURL string, opts Options) (*Publisher, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	p := New(bucket, opts)
	p.owned = true
	return p, nil
}

// New wraps an open bucket. The caller keeps ownership of it.
func New(bucket *blob.Bucket, opts Options) *Publisher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{
		bucket: bucket,
		opts:   opts,
		log:    logger.OrNop(opts.Logger),
	}
}

// Close closes the bucket if it was opened by Open.
func (p *Publisher) Close() error {
	if p.owned {
		return p.bucket.Close()
	}
	return nil
}

// Key returns the object key for the merged image of res.
func (p *Publisher) Key(res *downloader.Result) string {
	started := res.StartedAt.UTC()
	return path.Join(p.opts.Prefix, res.Job.Name,
		started.Format("2006/01/02/15-04-05")+"Z_merged.png")
}

// ManifestKey returns the key of the manifest stored next to key.
func ManifestKey(key string) string {
	return key + ".manifest.json"
}

// Publish uploads the merged image of res and its manifest and returns the
// image key.
func (p *Publisher) Publish(ctx context.Context, res *downloader.Result) (string, error) {
	if res.MergedPath == "" {
		return "", ErrNotMerged
	}
	key := p.Key(res)
	log := p.log.With().Str("job", res.Job.Name).Str("key", key).Logger()

	sum, size, err := fileChecksum(res.MergedPath)
	if err != nil {
		return "", err
	}

	existing, err := p.Manifest(ctx, key)
	switch {
	case err == nil && existing.Checksum == sum:
		log.Info().Msg("already published, skipping upload")
		return key, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return "", err
	}

	if err := p.upload(ctx, res, key); err != nil {
		return "", err
	}

	manifest := Manifest{
		Job:         res.Job.Name,
		RunID:       res.RunID,
		XStart:      res.Job.XStart,
		YStart:      res.Job.YStart,
		XEnd:        res.Job.XEnd,
		YEnd:        res.Job.YEnd,
		Saved:       res.Saved,
		Empty:       res.Empty,
		Size:        size,
		Checksum:    sum,
		StartedAt:   res.StartedAt,
		PublishedAt: p.opts.Now().UTC(),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := p.bucket.WriteAll(ctx, ManifestKey(key), data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	log.Info().Int64("bytes", size).Msg("published merged image")
	return key, nil
}

// upload streams the merged image into the bucket. A failed upload is
// aborted and any partial object removed.
func (p *Publisher) upload(ctx context.Context, res *downloader.Result, key string) error {
	f, err := os.Open(res.MergedPath)
	if err != nil {
		return fmt.Errorf("open merged image: %w", err)
	}
	defer f.Close()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := p.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: "image/png",
		Metadata: map[string]string{
			"job":    res.Job.Name,
			"run_id": res.RunID,
		},
	})
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}

	if _, err := io.Copy(w, f); err != nil {
		cancel()
		w.Close()
		p.bucket.Delete(context.Background(), key)
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Manifest reads the manifest stored for key. It returns an error wrapping
// ErrNotFound when there is none.
func (p *Publisher) Manifest(ctx context.Context, key string) (*Manifest, error) {
	data, err := p.bucket.ReadAll(ctx, ManifestKey(key))
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func fileChecksum(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, fmt.Errorf("open merged image: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("checksum merged image: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
