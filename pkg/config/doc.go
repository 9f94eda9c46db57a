// Package config loads the volt daemon configuration from a YAML file.
//
// Values start from Default and are overridden by the file. ${VAR} references
// are expanded from the environment before decoding, so secrets can stay out
// of the file:
//
//	address: ":80"
//	auth:
//	  mode: digest
//	  username: admin
//	  password: ${VOLT_ADMIN_PASSWORD}
//	limits:
//	  max_upload_size: 4194304
//	uploads:
//	  s3:
//	    bucket: device-uploads
//	    access_key: ${S3_ACCESS_KEY}
//	    secret_key: ${S3_SECRET_KEY}
//
// Unknown keys are rejected. Validate reports every problem at once, joined
// under ErrInvalid.
package config
