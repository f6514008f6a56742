package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

const uploadPartSize = 16 * 1024 * 1024

// Uploader mirrors completed media files into an S3-compatible bucket so the
// archive survives local disk loss. Uploads happen after the queue record is
// finalized; a failed upload never changes queue state.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewUploader(ctx context.Context, bucket, prefix string) (*Uploader, error) {
	profile := os.Getenv("AWS_PROFILE")
	if profile == "" {
		profile = "default"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithSharedConfigProfile(profile),
		awsconfig.WithRetryMode("adaptive"))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	return &Uploader{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

func (u *Uploader) UploadFile(ctx context.Context, filePath string) error {
	log := utils.GetLogger("archive")
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("error opening file for upload: %v", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("error getting file info: %v", err)
	}

	key := path.Join(u.prefix, filepath.Base(filePath))
	uploader := manager.NewUploader(u.client, func(up *manager.Uploader) {
		up.PartSize = uploadPartSize
		up.Concurrency = 4
	})
	log.Debug().Str("bucket", u.bucket).Str("key", key).Str("size", utils.FormatBytes(uint64(info.Size()))).Msg("Starting upload")
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("error uploading to S3: %v", err)
	}
	return nil
}
