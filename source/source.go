/*
Copyright (C) 2023  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package source resolves an input path to bytes, transparently fetching
// from S3 when the path is an "s3://bucket/key" URL instead of a local
// file. This is the only place in the module that talks to S3: the
// transducer and control plane never know the difference between a local
// and a remote source.
package source

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/launix-de/fef/ferr"
)

const s3Scheme = "s3://"

// IsS3Path reports whether path names an S3 object rather than a local file.
func IsS3Path(path string) bool {
	return strings.HasPrefix(path, s3Scheme)
}

// splitS3Path turns "s3://bucket/key/with/slashes" into ("bucket",
// "key/with/slashes").
func splitS3Path(path string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(path, s3Scheme)
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", ferr.New(ferr.ParseError, "malformed s3 path "+path+", expected s3://bucket/key")
	}
	return rest[:idx], rest[idx+1:], nil
}

// Read fetches path's contents: from S3 when it is an "s3://..." URL,
// otherwise from the local filesystem. ctx only governs the S3 case; a
// local os.ReadFile is not cancellable mid-read.
func Read(ctx context.Context, path string) ([]byte, error) {
	if !IsS3Path(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ferr.Wrap(ferr.IoError, "read "+path, err)
		}
		return data, nil
	}

	bucket, key, err := splitS3Path(path)
	if err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if ak, sk := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); ak != "" && sk != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, ferr.Wrap(ferr.IoError, "load aws config for "+path, err)
	}
	client := s3.NewFromConfig(cfg)

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ferr.Wrap(ferr.IoError, "get object "+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ferr.Wrap(ferr.IoError, "read object body "+path, err)
	}
	return data, nil
}
