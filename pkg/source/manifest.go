package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Manifest is an AWS S3 Inventory manifest.json. It names the inventory
// files that together list every object of SourceBucket.
type Manifest struct {
	SourceBucket      string         `json:"sourceBucket"`
	DestinationBucket string         `json:"destinationBucket"`
	FileFormat        string         `json:"fileFormat"`
	FileSchema        string         `json:"fileSchema"`
	Files             []ManifestFile `json:"files"`
}

// ManifestFile is one inventory file listed in the manifest.
type ManifestFile struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// ParseManifest parses and validates a manifest.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.SourceBucket == "" {
		return errors.New("manifest missing sourceBucket")
	}
	if m.DestinationBucket == "" {
		return errors.New("manifest missing destinationBucket")
	}
	if len(m.Files) == 0 {
		return errors.New("manifest has no files")
	}
	if m.FileFormat != "" {
		upper := strings.ToUpper(m.FileFormat)
		if upper != "CSV" && upper != "PARQUET" {
			return fmt.Errorf("unsupported file format: %s (supported: CSV, Parquet)", m.FileFormat)
		}
	}
	return nil
}

// IsParquet reports whether the inventory files are Parquet. An explicit
// fileFormat wins; otherwise the first file's extension decides.
func (m *Manifest) IsParquet() bool {
	switch strings.ToUpper(m.FileFormat) {
	case "PARQUET":
		return true
	case "CSV":
		return false
	}
	return len(m.Files) > 0 && DetectInventoryFormat(m.Files[0].Key) == InventoryParquet
}

// KeyColumnIndex returns the index of the Key column in a CSV schema.
func (m *Manifest) KeyColumnIndex() (int, error) {
	for i, col := range strings.Split(m.FileSchema, ",") {
		if strings.EqualFold(strings.TrimSpace(col), "Key") {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column \"Key\" not found in schema: %s", m.FileSchema)
}

// DestinationBucketName returns the bucket name whether DestinationBucket
// is a plain name or an ARN such as "arn:aws:s3:::my-bucket".
func (m *Manifest) DestinationBucketName() (string, error) {
	return ParseBucketIdentifier(m.DestinationBucket)
}

// ParseBucketIdentifier extracts the bucket name from a plain bucket name or
// an S3 bucket ARN.
func ParseBucketIdentifier(bucketOrARN string) (string, error) {
	if bucketOrARN == "" {
		return "", errors.New("empty bucket identifier")
	}
	if !strings.HasPrefix(bucketOrARN, "arn:") {
		if strings.Contains(bucketOrARN, "://") {
			return "", fmt.Errorf("invalid bucket identifier %q: looks like a URI, use ParseS3URI instead", bucketOrARN)
		}
		return bucketOrARN, nil
	}

	// arn:partition:service:region:account:resource
	parts := strings.Split(bucketOrARN, ":")
	if len(parts) < 6 {
		return "", fmt.Errorf("invalid ARN %q: expected at least 6 colon-separated parts", bucketOrARN)
	}
	if parts[2] != "s3" {
		return "", fmt.Errorf("invalid S3 ARN %q: service must be 's3', got %q", bucketOrARN, parts[2])
	}
	resource := strings.Join(parts[5:], ":")
	if idx := strings.Index(resource, "/"); idx >= 0 {
		resource = resource[:idx]
	}
	if resource == "" {
		return "", fmt.Errorf("invalid S3 ARN %q: missing bucket name", bucketOrARN)
	}
	return resource, nil
}

// ParseS3URI parses an S3 URI (s3://bucket/key) into bucket and key components.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	path := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	return bucket, key, nil
}
