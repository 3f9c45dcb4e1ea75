package gcsuploader

import "testing"

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{uri: "gs://receipts/2026/02/r1.jpg", bucket: "receipts", object: "2026/02/r1.jpg"},
		{uri: "gs://receipts/r1.png", bucket: "receipts", object: "r1.png"},
		{uri: "https://example.com/r1.jpg", wantErr: true},
		{uri: "gs://receipts", wantErr: true},
		{uri: "gs://receipts/", wantErr: true},
		{uri: "gs:///object", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.bucket || object != tt.object {
				t.Errorf("ParseURI() = %q, %q, want %q, %q", bucket, object, tt.bucket, tt.object)
			}
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	tests := map[string]string{
		"gs://bucket/folder/receipt.jpg": "receipt.jpg",
		"gs://bucket/receipt.png":        "receipt.png",
		"gs://bucket":                    "bucket",
	}
	for uri, want := range tests {
		if got := ExtractFilenameFromGCSURI(uri); got != want {
			t.Errorf("ExtractFilenameFromGCSURI(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{"jpeg extension", "r.jpg", nil, "image/jpeg"},
		{"png extension upper", "R.PNG", nil, "image/png"},
		{"sniffed", "blob", png, "image/png"},
		{"unknown", "blob", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentTypeFor(tt.file, tt.data); got != tt.want {
				t.Errorf("ContentTypeFor() = %q, want %q", got, tt.want)
			}
		})
	}
}
