package assets_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MY221B/bird-download/internal/assets"
	"github.com/MY221B/bird-download/internal/services"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const sampleMetadata = `{
  "bird_info": {"slug": "mallard", "chinese_name": "绿头鸭", "wikipedia_page": "Mallard"},
  "macaulay": [{"url": "https://res.cloudinary.com/x/1.jpg"}, {"url": "https://res.cloudinary.com/x/2.jpg"}],
  "wikimedia": [{"url": "https://res.cloudinary.com/x/3.jpg"}],
  "birdphotos": [{"url": "legacy"}],
  "gallery_order": 4
}`

func TestLocalStoreCountsImagesPerSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "mallard", "macaulay", "a.jpg"), "x")
	writeFile(t, filepath.Join(root, "mallard", "macaulay", "b.JPEG"), "x")
	writeFile(t, filepath.Join(root, "mallard", "macaulay", "download_metadata.json"), "{}")
	writeFile(t, filepath.Join(root, "mallard", "avibase", "c.png"), "x")
	writeFile(t, filepath.Join(root, "mallard", "other", "d.jpg"), "x")

	store := assets.NewLocalStore(root)
	counts, err := store.Counts("mallard")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[assets.Macaulay] != 2 || counts[assets.Avibase] != 1 || counts[assets.Wikimedia] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
	ok, err := store.HasImages("mallard")
	if err != nil || !ok {
		t.Fatalf("expected images, got %v %v", ok, err)
	}
	ok, err = store.HasImages("grey_heron")
	if err != nil || ok {
		t.Fatalf("expected no images for unknown slug, got %v %v", ok, err)
	}
}

func TestCloudStoreLoadAndPreserve(t *testing.T) {
	dir := t.TempDir()
	store := assets.NewCloudStore(dir)
	writeFile(t, store.Path("mallard"), sampleMetadata)

	meta, err := store.Load("mallard")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if meta.PhotoCount() != 3 {
		t.Fatalf("expected 3 photos (legacy arrays excluded), got %d", meta.PhotoCount())
	}
	if meta.BirdInfo.Chinese() != "绿头鸭" {
		t.Fatalf("unexpected bird info %v", meta.BirdInfo)
	}

	updated, err := store.UpdateBirdInfo("mallard", "绿头鸭", "Mallard", "Anas platyrhynchos")
	if err != nil || !updated {
		t.Fatalf("UpdateBirdInfo = %v, %v", updated, err)
	}
	raw, err := os.ReadFile(store.Path("mallard"))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("rewritten document invalid: %v", err)
	}
	for _, key := range []string{"birdphotos", "gallery_order", "inaturalist", "avibase"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("key %q lost on rewrite: %s", key, raw)
		}
	}
	info := doc["bird_info"].(map[string]any)
	if info["scientific_name"] != "Anas platyrhynchos" || info["wikipedia_page"] != "Mallard" {
		t.Fatalf("unexpected bird_info %v", info)
	}
	if !strings.Contains(string(raw), "绿头鸭") {
		t.Fatal("chinese text should be written unescaped")
	}

	again, err := store.UpdateBirdInfo("mallard", "绿头鸭", "Mallard", "Anas platyrhynchos")
	if err != nil || again {
		t.Fatalf("second update should be a no-op, got %v %v", again, err)
	}
}

func TestCloudStoreMissingDocument(t *testing.T) {
	store := assets.NewCloudStore(t.TempDir())
	if _, err := store.Load("nothing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if store.PhotoCount("nothing") != 0 {
		t.Fatal("missing document should count zero photos")
	}
	updated, err := store.UpdateBirdInfo("nothing", "a", "b", "c")
	if err != nil || updated {
		t.Fatalf("expected silent skip, got %v %v", updated, err)
	}
}

func TestUpsertSoundReplacesByOriginalFile(t *testing.T) {
	store := assets.NewCloudStore(t.TempDir())
	writeFile(t, store.Path("mallard"), sampleMetadata)

	first := assets.Sound{OriginalFile: "mallard_123.mp3", URL: "https://a", PublicID: "bird-gallery/mallard/sounds/mallard_123"}
	if err := store.UpsertSound("mallard", first); err != nil {
		t.Fatalf("UpsertSound: %v", err)
	}
	second := first
	second.URL = "https://b"
	if err := store.UpsertSound("mallard", second); err != nil {
		t.Fatalf("UpsertSound: %v", err)
	}
	meta, err := store.Load("mallard")
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Sounds) != 1 || meta.Sounds[0].URL != "https://b" || !meta.HasSound() {
		t.Fatalf("unexpected sounds %+v", meta.Sounds)
	}
}

func TestInspectorAndSlugs(t *testing.T) {
	images, cloud := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(images, "mallard", "inaturalist", "1.jpg"), "x")
	cs := assets.NewCloudStore(cloud)
	writeFile(t, cs.Path("mallard"), sampleMetadata)
	writeFile(t, cs.Path("grey_heron"), `{"bird_info":{},"macaulay":[]}`)

	in := assets.Inspector{Local: assets.NewLocalStore(images), Cloud: cs}
	st, err := in.Inspect("mallard")
	if err != nil {
		t.Fatal(err)
	}
	if !st.HasLocalImages() || !st.Uploaded() || st.HasSound {
		t.Fatalf("unexpected state %+v", st)
	}
	heron, err := in.Inspect("grey_heron")
	if err != nil {
		t.Fatal(err)
	}
	if heron.Uploaded() || !heron.HasCloudMetadata || heron.HasLocalImages() {
		t.Fatalf("unexpected heron state %+v", heron)
	}

	slugs, err := cs.Slugs()
	if err != nil {
		t.Fatal(err)
	}
	if len(slugs) != 2 || slugs[0] != "grey_heron" {
		t.Fatalf("unexpected slugs %v", slugs)
	}
}

func TestSourceData(t *testing.T) {
	src, ok := assets.SourceByKey("Macaulay")
	if !ok || src != assets.Macaulay {
		t.Fatal("expected macaulay lookup")
	}
	if got := src.AssetURL("123"); got != "https://macaulaylibrary.org/asset/123" {
		t.Fatalf("unexpected asset url %q", got)
	}
	if got := assets.Wikimedia.AssetURL("1"); got != "" {
		t.Fatalf("wikimedia has no asset pages, got %q", got)
	}
	if got := src.Credit("Mallard", ""); got != "Mallard by Unknown; Cornell Lab of Ornithology | Macaulay Library" {
		t.Fatalf("unexpected credit %q", got)
	}
}
