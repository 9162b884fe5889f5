package capture

import (
	"context"
	"io"

	gcs "cloud.google.com/go/storage"
)

// gcsChunkSize matches storage/rowwriter.go's smaller-than-default chunk
// size, chosen there to conserve memory on long-running writes.
const gcsChunkSize = 4 * 1024 * 1024

// GCSObjectWriter wraps a GCS object's io.WriteCloser so a PCAPNGWriter
// can be pointed at a bucket the same way a local capture file would be
// opened, letting a capturesink flush a finished PCAPNG capture straight
// to cloud storage instead of local disk.
type GCSObjectWriter struct {
	w *gcs.Writer
}

// NewGCSObjectWriter opens bucket/path for writing under ctx. The
// returned writer must be closed (via Close, not just Flush) to commit
// the object.
func NewGCSObjectWriter(ctx context.Context, client *gcs.Client, bucket, path string) *GCSObjectWriter {
	w := client.Bucket(bucket).Object(path).NewWriter(ctx)
	w.SetChunkSize(gcsChunkSize)
	return &GCSObjectWriter{w: w}
}

func (g *GCSObjectWriter) Write(p []byte) (int, error) { return g.w.Write(p) }

// Close commits the object. Until Close returns, no data is guaranteed
// to be visible to readers of bucket/path.
func (g *GCSObjectWriter) Close() error { return g.w.Close() }

var _ io.WriteCloser = (*GCSObjectWriter)(nil)

// NewGCSPCAPNGWriter opens a PCAPNGWriter backed by a GCS object at
// bucket/path, for capturesink configs that want a capture buffer
// flushed to cloud storage rather than a local file or mmap region.
func NewGCSPCAPNGWriter(ctx context.Context, client *gcs.Client, bucket, path string, maxPacketSize int) (*PCAPNGWriter, io.Closer, error) {
	w := NewGCSObjectWriter(ctx, client, bucket, path)
	pw, err := NewPCAPNGWriter(w, maxPacketSize)
	if err != nil {
		w.Close()
		return nil, nil, err
	}
	return pw, w, nil
}
