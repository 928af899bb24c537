package cloudinary_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MY221B/bird-download/internal/cloudinary"
	"github.com/MY221B/bird-download/internal/services"
)

var testCreds = cloudinary.Credentials{CloudName: "demo", APIKey: "key123", APISecret: "secret"}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mallard_123456.mp3")
	if err := os.WriteFile(path, []byte("ID3fake-audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUploadSendsSignedMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1_1/demo/video/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("api_key") != "key123" || r.FormValue("signature") == "" {
			t.Errorf("upload not signed: %v", r.MultipartForm.Value)
		}
		if r.FormValue("public_id") != "mallard_123456" || r.FormValue("folder") != "bird-gallery/mallard/sounds" {
			t.Errorf("unexpected destination %v", r.MultipartForm.Value)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file field: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "ID3fake-audio" {
				t.Errorf("unexpected file body %q", data)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"secure_url":"https://res.cloudinary.com/demo/video/upload/v1/bird-gallery/mallard/sounds/mallard_123456.mp3",
			"public_id":"bird-gallery/mallard/sounds/mallard_123456","format":"mp3","bytes":13,"duration":12.5,
			"bit_rate":"128000","audio":{"codec":"mp3","frequency":44100}}`)
	}))
	defer srv.Close()

	client, err := cloudinary.New(testCreds, cloudinary.WithBaseURL(srv.URL+"/v1_1"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := client.Upload(context.Background(), cloudinary.UploadRequest{FilePath: writeAudio(t), Folder: "bird-gallery/mallard/sounds"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.PublicID != "bird-gallery/mallard/sounds/mallard_123456" || res.Format != "mp3" || res.Bytes != 13 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Duration != 12.5 || res.BitRate != 128000 {
		t.Fatalf("unexpected stream fields %+v", res)
	}
	if res.Audio == nil || res.Audio.Codec != "mp3" || res.Audio.Frequency != 44100 {
		t.Fatalf("unexpected audio detail %+v", res.Audio)
	}
}

func TestUploadErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrAuth},
		{http.StatusBadRequest, services.ErrProtocol},
		{http.StatusServiceUnavailable, services.ErrNetwork},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope"}}`)
		}))
		client, err := cloudinary.New(testCreds, cloudinary.WithBaseURL(srv.URL))
		if err != nil {
			t.Fatal(err)
		}
		_, err = client.Upload(context.Background(), cloudinary.UploadRequest{FilePath: writeAudio(t)})
		srv.Close()
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := cloudinary.New(cloudinary.Credentials{CloudName: "demo"}); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}
