// Command orthocache-mirror uploads a built cache directory tree to an
// S3-compatible object store, for serving tiles from object storage
// instead of local disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func main() {
	var (
		cachedir string
		endpoint string
		bucket   string
		prefix   string
		secure   bool
		dryRun   bool
	)

	flag.StringVar(&cachedir, "cache", "cache", "cache directory to mirror")
	flag.StringVar(&endpoint, "endpoint", os.Getenv("S3_ENDPOINT"), "S3-compatible endpoint host:port (default: $S3_ENDPOINT)")
	flag.StringVar(&bucket, "bucket", "", "destination bucket")
	flag.StringVar(&prefix, "prefix", "", "key prefix under the bucket")
	flag.BoolVar(&secure, "secure", true, "use TLS for the S3 connection")
	flag.BoolVar(&dryRun, "dry-run", false, "list what would be uploaded without uploading")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orthocache-mirror -cache <dir> -bucket <name> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Credentials are read from $S3_KEY and $S3_SECRET.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if bucket == "" || endpoint == "" {
		flag.Usage()
		os.Exit(1)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("S3_KEY"), os.Getenv("S3_SECRET"), ""),
		Secure: secure,
	})
	if err != nil {
		log.Fatalf("connecting to %q: %v", endpoint, err)
	}
	client.SetAppInfo("orthocache-mirror", "0.1")

	ctx := context.Background()
	uploaded := 0
	err = filepath.Walk(cachedir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(cachedir, path)
		if err != nil {
			return err
		}
		key := strings.TrimPrefix(filepath.ToSlash(filepath.Join(prefix, rel)), "/")

		if dryRun {
			fmt.Printf("%s -> s3://%s/%s\n", path, bucket, key)
			return nil
		}
		opts := minio.PutObjectOptions{ContentType: contentType(path)}
		if _, err := client.FPutObject(ctx, bucket, key, path, opts); err != nil {
			return fmt.Errorf("uploading %q: %w", path, err)
		}
		uploaded++
		return nil
	})
	if err != nil {
		log.Fatalf("mirroring %q: %v", cachedir, err)
	}
	if !dryRun {
		log.Printf("uploaded %d file(s) to s3://%s/%s", uploaded, bucket, prefix)
	}
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".json":
		return "application/json"
	case ".webp":
		return "image/webp"
	default:
		if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
