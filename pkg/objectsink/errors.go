package objectsink

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Sentinel errors for upload sinks.
var (
	ErrInvalidConfig = errors.New("objectsink: invalid configuration")
	ErrOutOfOrder    = errors.New("objectsink: chunk offset out of order")
	ErrTooLarge      = errors.New("objectsink: upload exceeds size limit")
	ErrInvalidName   = errors.New("objectsink: invalid file name")
	ErrUploadFailed  = errors.New("objectsink: upload failed")
	ErrAccessDenied  = errors.New("objectsink: access denied")
	ErrNoSuchBucket  = errors.New("objectsink: bucket not found")
)

// wrapS3Error maps S3 API failures onto the package sentinels.
func wrapS3Error(err error) error {
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return fmt.Errorf("%w: %v", ErrNoSuchBucket, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return fmt.Errorf("%w: %v", ErrNoSuchBucket, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrUploadFailed, err)
}
