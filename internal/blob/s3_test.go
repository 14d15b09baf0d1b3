package blob

import "testing"

func TestNewS3StoreValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
	}{
		{"missing bucket", S3Config{Region: "me-south-1", AccessKeyID: "k", SecretAccessKey: "s"}},
		{"missing region", S3Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}},
		{"missing access key", S3Config{Bucket: "b", Region: "me-south-1", SecretAccessKey: "s"}},
		{"missing secret key", S3Config{Bucket: "b", Region: "me-south-1", AccessKeyID: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewS3Store(tt.cfg); err == nil {
				t.Error("no error for incomplete config")
			}
		})
	}
}

func TestNewS3StoreComplete(t *testing.T) {
	store, err := NewS3Store(S3Config{
		Bucket:          "diwan-attachments",
		Region:          "me-south-1",
		AccessKeyID:     "k",
		SecretAccessKey: "s",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if store.bucket != "diwan-attachments" {
		t.Errorf("bucket %q", store.bucket)
	}
}
