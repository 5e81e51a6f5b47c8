// Package publish uploads merged region images to object storage.
//
// Any gocloud.dev/blob bucket URL works (s3://, gs://, file://, mem://).
// Each image is stored under {prefix}/{job}/{YYYY}/{MM}/{DD}/{HH-MM-SS}Z_merged.png
// next to a {key}.manifest.json describing the region, run and checksum:
//
//	pub, err := publish.Open(ctx, "s3://snapshots?region=eu-west-1", publish.Options{})
//	if err != nil {
//	    return err
//	}
//	defer pub.Close()
//
//	key, err := pub.Publish(ctx, res)
//
// Publishing is idempotent: an image whose manifest already records the
// same checksum is not uploaded again.
package publish
