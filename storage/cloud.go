package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/janelia-flyem/voxflow/dvid"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// OpenBucket returns a blob.Bucket for the given reference, which should be one of:
//
//	mem://
//	file:///<directory>
//	gs://<bucketname>[/<prefix>]
//	s3://<bucketname>[/<prefix>]
//	vast://<endpoint>/<bucketname>
//	<bucketname>                      (Google Storage using default credentials)
func OpenBucket(ctx context.Context, ref string) (bucket *blob.Bucket, err error) {
	switch {
	case strings.HasPrefix(ref, "mem://"), strings.HasPrefix(ref, "file://"):
		if dir := strings.TrimPrefix(ref, "file://"); dir != ref {
			// fileblob requires an existing directory.
			if i := strings.IndexByte(dir, '?'); i >= 0 {
				dir = dir[:i]
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("can't create bucket directory %q: %v", dir, err)
			}
		}
		bucket, err = blob.OpenBucket(ctx, ref)
		if err != nil {
			dvid.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}

	case strings.HasPrefix(ref, "s3://"), strings.HasPrefix(ref, "gs://"):
		// Credentials are found the usual gocloud way, e.g., AWS_REGION plus the
		// shared credentials file for S3 or application default credentials for GCS.
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("bad bucket reference %q: %v", ref, err)
		}
		prefix := strings.TrimPrefix(u.Path, "/")
		u.Path = ""
		bucket, err = blob.OpenBucket(ctx, u.String())
		if err != nil {
			dvid.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}
		if prefix != "" {
			if !strings.HasSuffix(prefix, "/") {
				prefix += "/"
			}
			bucket = blob.PrefixedBucket(bucket, prefix)
		}

	case strings.HasPrefix(ref, "vast://"):
		// VAST S3-compatible storage.  AWS_REGION must be set although it is ignored,
		// and AWS_SHARED_CREDENTIALS_FILE should give the access keys.
		parts := strings.SplitN(strings.TrimPrefix(ref, "vast://"), "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("vast ref must be of form 'vast://<endpoint>/<bucket>'")
		}
		s3url := fmt.Sprintf("s3://%s?endpoint=%s&s3ForcePathStyle=true", parts[1], parts[0])
		bucket, err = blob.OpenBucket(ctx, s3url)
		if err != nil {
			dvid.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}

	case strings.Contains(ref, "://"):
		return nil, dvid.ConfigErrorf("unsupported bucket scheme in %q", ref)

	default:
		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, err
		}
		client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
		if err != nil {
			return nil, err
		}
		bucket, err = gcsblob.OpenBucket(ctx, client, ref, nil)
		if err != nil {
			dvid.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}
	}
	return bucket, nil
}
