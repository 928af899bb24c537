package sounds_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MY221B/bird-download/internal/assets"
	"github.com/MY221B/bird-download/internal/cloudinary"
	"github.com/MY221B/bird-download/internal/retry"
	"github.com/MY221B/bird-download/internal/services"
	"github.com/MY221B/bird-download/internal/sounds"
	"github.com/MY221B/bird-download/internal/taxcache"
)

var fakeMP3 = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 256)...)

func TestEBirdSpeciesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ref/taxonomy/ebird", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-eBirdApiToken"))
		assert.Equal(t, "json", r.URL.Query().Get("fmt"))
		switch r.URL.Query().Get("species") {
		case "Pycnonotus sinensis":
			_, _ = w.Write([]byte(`[{"speciesCode":"lighth1","sciName":"Pycnonotus sinensis","comName":"Light-vented Bulbul"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer server.Close()

	client := sounds.NewEBird(server.URL, "secret")
	code, err := client.SpeciesCode(context.Background(), "Pycnonotus sinensis")
	require.NoError(t, err)
	assert.Equal(t, "lighth1", code)

	_, err = client.SpeciesCode(context.Background(), "Nonexistent bird")
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = sounds.NewEBird(server.URL, "").SpeciesCode(context.Background(), "Pycnonotus sinensis")
	assert.ErrorIs(t, err, services.ErrAuth)
}

func TestEBirdServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := sounds.NewEBird(server.URL, "secret").Taxonomy(context.Background())
	require.Error(t, err)
	assert.True(t, services.IsRetryable(err))
}

func TestMacaulayBestRecording(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "a", q.Get("mediaType"))
		assert.Equal(t, "rating_rank_desc", q.Get("sort"))
		assert.Equal(t, "3", q.Get("count"))
		switch q.Get("taxonCode") {
		case "lighth1":
			_, _ = w.Write([]byte(`{"results":{"content":[{"assetId":123456,"rating":4.5,"duration":31.2},{"assetId":9}]}}`))
		case "eurtre1":
			_, _ = w.Write([]byte(`{"results":{"content":[{"catalogId":"ML777"}]}}`))
		default:
			_, _ = w.Write([]byte(`{"results":{"content":[]}}`))
		}
	}))
	defer server.Close()

	client := sounds.NewMacaulay(server.URL, "")
	rec, err := client.BestRecording(context.Background(), "lighth1")
	require.NoError(t, err)
	assert.Equal(t, "123456", rec.AssetID)
	assert.InDelta(t, 4.5, rec.Rating, 0.001)

	rec, err = client.BestRecording(context.Background(), "eurtre1")
	require.NoError(t, err)
	assert.Equal(t, "777", rec.AssetID)

	_, err = client.BestRecording(context.Background(), "nothing")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestMacaulayDownloadVerifiesAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/123/audio":
			_, _ = w.Write(fakeMP3)
		case "/456/audio":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<!DOCTYPE html><html><body>blocked</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	client := sounds.NewMacaulay("", server.URL)

	path, err := client.Download(context.Background(), sounds.Recording{AssetID: "123"}, dir, "light_vented_bulbul")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "light_vented_bulbul_123.mp3"), path)
	assert.FileExists(t, path)

	_, err = client.Download(context.Background(), sounds.Recording{AssetID: "456"}, dir, "light_vented_bulbul")
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.NoFileExists(t, filepath.Join(dir, "light_vented_bulbul_456.mp3"))

	_, err = client.Download(context.Background(), sounds.Recording{AssetID: "789"}, dir, "x")
	assert.ErrorIs(t, err, services.ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

type stubLookup struct {
	code string
	err  error
}

func (s stubLookup) SpeciesCode(context.Context, string) (string, error) { return s.code, s.err }

func TestResolverFallsBackToTaxonomyCache(t *testing.T) {
	cache := taxcache.New(nil, func(context.Context) ([]taxcache.Taxon, error) {
		return []taxcache.Taxon{
			{SpeciesCode: "lighth1", SciName: "Pycnonotus sinensis", ComName: "Light-vented Bulbul"},
			{SpeciesCode: "gretit4", SciName: "Parus minor minor", ComName: "Japanese Tit"},
		}, nil
	})
	notFound := services.Wrap(services.ErrNotFound, "ebird", "species code", "x", nil)

	resolver := sounds.Resolver{Direct: stubLookup{err: notFound}, Cache: cache}
	code, err := resolver.Resolve(context.Background(), "Pycnonotus sinensis", "")
	require.NoError(t, err)
	assert.Equal(t, "lighth1", code)

	code, err = resolver.Resolve(context.Background(), "Parus minor", "")
	require.NoError(t, err)
	assert.Equal(t, "gretit4", code, "substring match on scientific name")

	code, err = resolver.Resolve(context.Background(), "Unknown sp.", "japanese tit")
	require.NoError(t, err)
	assert.Equal(t, "gretit4", code, "substring match on common name")

	_, err = resolver.Resolve(context.Background(), "Unknown sp.", "")
	assert.ErrorIs(t, err, services.ErrNotFound)

	direct := sounds.Resolver{Direct: stubLookup{code: "direct1"}, Cache: cache}
	code, err = direct.Resolve(context.Background(), "Pycnonotus sinensis", "")
	require.NoError(t, err)
	assert.Equal(t, "direct1", code)
}

type fakeResolver struct{ code string }

func (f fakeResolver) Resolve(context.Context, string, string) (string, error) {
	if f.code == "" {
		return "", services.Wrap(services.ErrNotFound, "ebird", "species code", "", nil)
	}
	return f.code, nil
}

type fakeLibrary struct {
	rec           *sounds.Recording
	downloadFails int
	downloads     int
}

func (f *fakeLibrary) BestRecording(context.Context, string) (*sounds.Recording, error) {
	if f.rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "macaulay", "search", "", nil)
	}
	return f.rec, nil
}

func (f *fakeLibrary) Download(_ context.Context, rec sounds.Recording, dir, slug string) (string, error) {
	f.downloads++
	if f.downloads <= f.downloadFails {
		return "", services.Wrap(services.ErrNetwork, "macaulay", "download", "reset", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, sounds.FileName(slug, rec.AssetID))
	return path, os.WriteFile(path, fakeMP3, 0o644)
}

type fakeUploader struct {
	requests []cloudinary.UploadRequest
	err      error
}

func (f *fakeUploader) Upload(_ context.Context, req cloudinary.UploadRequest) (*cloudinary.UploadResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &cloudinary.UploadResult{
		SecureURL: "https://res.cloudinary.com/demo/video/upload/" + filepath.Base(req.FilePath),
		PublicID:  req.Folder + "/x",
		Format:    "mp3",
		Bytes:     int64(len(fakeMP3)),
		Duration:  12.5,
	}, nil
}

func writeMetadata(t *testing.T, dir, slug string, doc map[string]any) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, slug+"_cloudinary_urls.json"), data, 0o644))
}

func newPipeline(t *testing.T, lib *fakeLibrary, up *fakeUploader, code string) (*sounds.Pipeline, *assets.CloudStore) {
	t.Helper()
	dir := t.TempDir()
	store := assets.NewCloudStore(dir)
	writeMetadata(t, dir, "light_vented_bulbul", map[string]any{
		"bird_info": map[string]any{
			"chinese_name":    "白头鹎",
			"english_name":    "Light-vented Bulbul",
			"scientific_name": "Pycnonotus sinensis",
		},
		"macaulay": []any{map[string]any{"url": "https://example.test/1.jpg"}},
		"sounds":   []any{},
	})
	writeMetadata(t, dir, "no_sci", map[string]any{
		"bird_info": map[string]any{"chinese_name": "某鸟"},
	})
	writeMetadata(t, dir, "has_sound", map[string]any{
		"bird_info": map[string]any{"scientific_name": "Passer montanus"},
		"sounds":    []any{map[string]any{"original_file": "a.mp3", "url": "u", "public_id": "p"}},
	})
	return &sounds.Pipeline{
		Resolver:   fakeResolver{code: code},
		Library:    lib,
		Uploader:   up,
		Store:      store,
		ScratchDir: filepath.Join(t.TempDir(), "scratch"),
		Policy:     retry.Policy{Attempts: 2},
	}, store
}

func TestPipelineAcquiresSound(t *testing.T) {
	lib := &fakeLibrary{rec: &sounds.Recording{AssetID: "123456"}, downloadFails: 1}
	up := &fakeUploader{}
	p, store := newPipeline(t, lib, up, "lighth1")

	summary := p.Run(context.Background(), []string{"light_vented_bulbul", "no_sci", "has_sound", "no_document"})
	assert.Equal(t, []string{"light_vented_bulbul"}, summary.Succeeded)
	assert.Equal(t, []string{"has_sound"}, summary.Present)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, sounds.ReasonMissingScientific, summary.Failed[0].Reason)
	assert.Equal(t, 2, summary.Attempted())
	assert.Equal(t, 2, lib.downloads, "network failure retried once")

	require.Len(t, up.requests, 1)
	assert.Equal(t, "bird-gallery/light_vented_bulbul/sounds", up.requests[0].Folder)

	meta, err := store.Load("light_vented_bulbul")
	require.NoError(t, err)
	require.Len(t, meta.Sounds, 1)
	got := meta.Sounds[0]
	assert.Equal(t, "light_vented_bulbul_123456.mp3", got.OriginalFile)
	assert.Equal(t, "macaulay", got.Attribution.Source)
	assert.Equal(t, "123456", got.Attribution.SourceID)
	assert.Equal(t, "https://macaulaylibrary.org/asset/123456", got.Attribution.AssetURL)
	assert.Nil(t, got.Attribution.Note)
	assert.Equal(t, 1, meta.PhotoCount(), "photos preserved")
}

func TestPipelineFailureReasons(t *testing.T) {
	tests := []struct {
		name   string
		lib    *fakeLibrary
		up     *fakeUploader
		code   string
		reason string
	}{
		{"no code", &fakeLibrary{rec: &sounds.Recording{AssetID: "1"}}, &fakeUploader{}, "", sounds.ReasonNoSpeciesCode},
		{"no audio", &fakeLibrary{}, &fakeUploader{}, "lighth1", sounds.ReasonNoAudio},
		{"download", &fakeLibrary{rec: &sounds.Recording{AssetID: "1"}, downloadFails: 5}, &fakeUploader{}, "lighth1", sounds.ReasonDownloadFailed},
		{"upload", &fakeLibrary{rec: &sounds.Recording{AssetID: "1"}}, &fakeUploader{err: errors.New("denied")}, "lighth1", sounds.ReasonUploadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store := newPipeline(t, tt.lib, tt.up, tt.code)
			res := p.Acquire(context.Background(), "light_vented_bulbul")
			assert.False(t, res.Success)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, "白头鹎", res.Name)
			meta, err := store.Load("light_vented_bulbul")
			require.NoError(t, err)
			assert.False(t, meta.HasSound())
		})
	}

	p, _ := newPipeline(t, &fakeLibrary{}, &fakeUploader{}, "x")
	res := p.Acquire(context.Background(), "no_document")
	assert.Equal(t, sounds.ReasonMissingBirdInfo, res.Reason)
}

func TestBuildSoundWithoutAssetIDNeedsCredit(t *testing.T) {
	sound := sounds.BuildSound("recording.mp3", &cloudinary.UploadResult{SecureURL: "https://x/y.mp3"})
	require.NotNil(t, sound.Attribution.Note)
	assert.Equal(t, "署名信息待补充", *sound.Attribution.Note)
	assert.Empty(t, sound.Attribution.Source)
}
