/*************************************************************************
 * Copyright 2025 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

const (
	defaultRegion = `us-east-1`
	regionParam   = `region`
	endpointParam = `endpoint`
)

var ErrBadS3URL = errors.New("s3 URLs must be of the form s3://bucket/key")

// ObjectGetter is the slice of the S3 API the updater needs.
type ObjectGetter interface {
	GetObjectWithContext(aws.Context, *s3.GetObjectInput, ...request.Option) (*s3.GetObjectOutput, error)
}

// s3Location splits s3://bucket/key?region=x into its parts.
func s3Location(uri *url.URL) (bucket, key, region, endpoint string, err error) {
	bucket = uri.Host
	key = strings.TrimPrefix(uri.Path, `/`)
	if bucket == `` || key == `` {
		err = ErrBadS3URL
		return
	}
	q := uri.Query()
	if region = q.Get(regionParam); region == `` {
		region = defaultRegion
	}
	endpoint = q.Get(endpointParam)
	return
}

func newS3Client(region, endpoint string) (ObjectGetter, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != `` {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("Failed to create S3 session %w", err)
	}
	return s3.New(sess), nil
}

func (u *Updater) fetchS3(ctx context.Context, uri *url.URL) (rc io.ReadCloser, err error) {
	var bucket, key, region, endpoint string
	if bucket, key, region, endpoint, err = s3Location(uri); err != nil {
		return
	}
	svc := u.S3
	if svc == nil {
		if svc, err = newS3Client(region, endpoint); err != nil {
			return
		}
	}
	var out *s3.GetObjectOutput
	if out, err = svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return
	}
	if out.ContentLength != nil && *out.ContentLength > u.MaxSize {
		out.Body.Close()
		err = ErrDownloadTooLarge
		return
	}
	rc = out.Body
	return
}
