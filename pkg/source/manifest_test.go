package source

import (
	"strings"
	"testing"
)

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name        string
		json        string
		wantErr     bool
		wantFiles   int
		wantParquet bool
	}{
		{
			name: "csv manifest",
			json: `{
				"sourceBucket": "content",
				"destinationBucket": "inventory-bucket",
				"version": "2016-11-30",
				"fileFormat": "CSV",
				"fileSchema": "Bucket, Key, Size, LastModifiedDate",
				"files": [
					{"key": "data/file1.csv.gz", "size": 1234, "MD5checksum": "abc123"},
					{"key": "data/file2.csv.gz", "size": 5678, "MD5checksum": "def456"}
				]
			}`,
			wantFiles: 2,
		},
		{
			name: "parquet manifest",
			json: `{
				"sourceBucket": "content",
				"destinationBucket": "arn:aws:s3:::inventory-bucket",
				"fileFormat": "Parquet",
				"files": [{"key": "data/file.parquet", "size": 100}]
			}`,
			wantFiles:   1,
			wantParquet: true,
		},
		{
			name: "format inferred from extension",
			json: `{
				"sourceBucket": "content",
				"destinationBucket": "inventory-bucket",
				"files": [{"key": "data/file.parquet"}]
			}`,
			wantFiles:   1,
			wantParquet: true,
		},
		{
			name: "missing source bucket",
			json: `{
				"destinationBucket": "inventory-bucket",
				"fileFormat": "CSV",
				"fileSchema": "Bucket, Key, Size",
				"files": [{"key": "file.csv", "size": 100}]
			}`,
			wantErr: true,
		},
		{
			name: "missing destination bucket",
			json: `{
				"sourceBucket": "content",
				"fileFormat": "CSV",
				"fileSchema": "Bucket, Key, Size",
				"files": [{"key": "file.csv", "size": 100}]
			}`,
			wantErr: true,
		},
		{
			name: "no files",
			json: `{
				"sourceBucket": "content",
				"destinationBucket": "inventory-bucket",
				"fileFormat": "CSV",
				"fileSchema": "Key, Size",
				"files": []
			}`,
			wantErr: true,
		},
		{
			name: "unsupported format ORC",
			json: `{
				"sourceBucket": "content",
				"destinationBucket": "inventory-bucket",
				"fileFormat": "ORC",
				"fileSchema": "Key, Size",
				"files": [{"key": "file.orc", "size": 100}]
			}`,
			wantErr: true,
		},
		{
			name:    "not json",
			json:    `sourceBucket: content`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseManifest(strings.NewReader(tt.json))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(m.Files) != tt.wantFiles {
				t.Errorf("got %d files, want %d", len(m.Files), tt.wantFiles)
			}
			if m.IsParquet() != tt.wantParquet {
				t.Errorf("IsParquet = %v, want %v", m.IsParquet(), tt.wantParquet)
			}
		})
	}
}

func TestManifestKeyColumnIndex(t *testing.T) {
	tests := []struct {
		schema  string
		want    int
		wantErr bool
	}{
		{"Bucket, Key, Size, LastModifiedDate, ETag", 1, false},
		{"bucket, KEY, SIZE, lastmodifieddate", 1, false},
		{"Key", 0, false},
		{"Bucket, ObjectKey, ObjectSize", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.schema, func(t *testing.T) {
			got, err := (&Manifest{FileSchema: tt.schema}).KeyColumnIndex()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for missing Key column")
				}
				return
			}
			if err != nil {
				t.Fatalf("KeyColumnIndex failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("KeyColumnIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseBucketIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "my-bucket", want: "my-bucket"},
		{in: "arn:aws:s3:::my-bucket", want: "my-bucket"},
		{in: "arn:aws:s3:::my-bucket/prefix", want: "my-bucket"},
		{in: "arn:aws-cn:s3:::cn-bucket", want: "cn-bucket"},
		{in: "", wantErr: true},
		{in: "s3://my-bucket", wantErr: true},
		{in: "arn:aws:sqs:::queue", wantErr: true},
		{in: "arn:aws:s3", wantErr: true},
		{in: "arn:aws:s3:::", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBucketIdentifier(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseBucketIdentifier(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseBucketIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{uri: "s3://my-bucket/path/to/manifest.json", wantBucket: "my-bucket", wantKey: "path/to/manifest.json"},
		{uri: "s3://bucket/key", wantBucket: "bucket", wantKey: "key"},
		{uri: "s3://bucket-only/", wantBucket: "bucket-only"},
		{uri: "s3://bucket", wantBucket: "bucket"},
		{uri: "https://bucket/key", wantErr: true},
		{uri: "/local/path", wantErr: true},
		{uri: "s3://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if bucket != tt.wantBucket {
				t.Errorf("bucket = %q, want %q", bucket, tt.wantBucket)
			}
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
		})
	}
}
