package registry_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MY221B/bird-download/internal/registry"
	"github.com/MY221B/bird-download/internal/species"
)

func TestReadDetectsChineseColumn(t *testing.T) {
	withChinese := registry.Header + "\n" +
		`red_flanked_bluetail,"红胁蓝尾鸲","Red-flanked Bluetail","Tarsiger cyanurus",Red-flanked_Bluetail` + "\n" +
		"\n" +
		`japanese_tit,"大山雀","Japanese Tit","Parus minor",Japanese_Tit` + "\n"
	reg, err := registry.Read(strings.NewReader(withChinese))
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())
	entry, ok := reg.Get("japanese_tit")
	require.True(t, ok)
	assert.Equal(t, "大山雀", entry.Chinese)
	assert.Equal(t, "Parus minor", entry.Scientific)

	legacy := "# slug,english_name,scientific_name,wikipedia_page\n" +
		`common_kingfisher,"Common Kingfisher","Alcedo atthis",Common_kingfisher` + "\n"
	reg, err = registry.Read(strings.NewReader(legacy))
	require.NoError(t, err)
	entry, ok = reg.Get("common_kingfisher")
	require.True(t, ok)
	assert.Empty(t, entry.Chinese)
	assert.Equal(t, "Common Kingfisher", entry.English)
	assert.Equal(t, "Alcedo atthis", entry.Scientific)
	assert.Equal(t, "Common_kingfisher", entry.Wikipedia)
}

func TestReadWithoutHeaderUsesFieldCount(t *testing.T) {
	doc := `red_flanked_bluetail,"Red-flanked Bluetail","Tarsiger cyanurus",Red-flanked_Bluetail` + "\n" +
		`mallard,"绿头鸭","Mallard","Anas platyrhynchos",Mallard` + "\n"
	reg, err := registry.Read(strings.NewReader(doc))
	require.NoError(t, err)

	legacy, ok := reg.Get("red_flanked_bluetail")
	require.True(t, ok)
	assert.Empty(t, legacy.Chinese)
	assert.Equal(t, "Red-flanked Bluetail", legacy.English)
	assert.Equal(t, "Tarsiger cyanurus", legacy.Scientific)
	assert.Equal(t, "Red-flanked_Bluetail", legacy.Wikipedia)

	full, ok := reg.Get("mallard")
	require.True(t, ok)
	assert.Equal(t, "绿头鸭", full.Chinese)
	assert.Equal(t, "Anas platyrhynchos", full.Scientific)
}

func TestReadSkipsHeaderRows(t *testing.T) {
	doc := "slug,chinese_name,english_name,scientific_name,wikipedia_page\n" +
		`mallard,"绿头鸭","Mallard","Anas platyrhynchos",Mallard` + "\n"
	reg, err := registry.Read(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"mallard"}, reg.Slugs())
}

func TestWriteRoundTrip(t *testing.T) {
	reg := registry.New()
	reg.Put(registry.Entry{Slug: "odd", Chinese: `奇"怪"`, English: "Odd, Bird", Scientific: "Oddus birdus", Wikipedia: "Odd_Bird"})
	var buf bytes.Buffer
	require.NoError(t, reg.Write(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), registry.Header+"\n"))

	back, err := registry.Read(&buf)
	require.NoError(t, err)
	entry, ok := back.Get("odd")
	require.True(t, ok)
	assert.Equal(t, "Odd, Bird", entry.English)
	assert.Equal(t, "Odd_Bird", entry.Wikipedia)
}

func TestWriteQuotesWikipediaWithComma(t *testing.T) {
	reg := registry.New()
	reg.Put(registry.Entry{Slug: "heron", English: "Grey Heron", Scientific: "Ardea cinerea", Wikipedia: "Heron,_grey"})
	var buf bytes.Buffer
	require.NoError(t, reg.Write(&buf))
	assert.Contains(t, buf.String(), `,"Heron,_grey"`)

	back, err := registry.Read(&buf)
	require.NoError(t, err)
	entry, ok := back.Get("heron")
	require.True(t, ok)
	assert.Equal(t, "Heron,_grey", entry.Wikipedia)
	assert.Equal(t, "Ardea cinerea", entry.Scientific)
}

func TestReconcileNeverClobbers(t *testing.T) {
	reg := registry.New()
	reg.Put(registry.Entry{Slug: "japanese_tit", English: "Japanese Tit", Scientific: "", Wikipedia: "Japanese_Tit"})

	res := registry.Reconcile(reg, []species.Record{
		{Chinese: "大山雀", English: "Japanese Tit", Scientific: "Parus minor"},
		{Chinese: "红胁蓝尾鸲", English: "Red-flanked Bluetail", Scientific: "Tarsiger cyanurus"},
	})
	assert.Equal(t, []string{"red_flanked_bluetail"}, res.New)
	assert.Equal(t, []string{"japanese_tit"}, res.Updated)
	assert.Equal(t, []string{"japanese_tit", "red_flanked_bluetail"}, res.Slugs)

	tit, _ := reg.Get("japanese_tit")
	assert.Equal(t, "大山雀", tit.Chinese)
	assert.Equal(t, "Parus minor", tit.Scientific)

	// Same slug, different english spelling: the canonical value stays.
	reg.Put(registry.Entry{Slug: "grey_heron", English: "Grey Heron"})
	res = registry.Reconcile(reg, []species.Record{{Chinese: "苍鹭", English: "Grey heron", Scientific: "Ardea cinerea"}})
	heron, _ := reg.Get("grey_heron")
	assert.Equal(t, "Grey Heron", heron.English)
	assert.Equal(t, "苍鹭", heron.Chinese)
	assert.Equal(t, []string{"grey_heron"}, res.Updated)
	assert.Empty(t, res.New)
}

func TestReconcileIsIdempotent(t *testing.T) {
	reg := registry.New()
	records := []species.Record{{Chinese: "喜鹊", English: "Oriental Magpie", Scientific: "Pica serica"}}
	first := registry.Reconcile(reg, records)
	second := registry.Reconcile(reg, records)
	assert.Len(t, first.New, 1)
	assert.Empty(t, second.New)
	assert.Empty(t, second.Updated)
	assert.Equal(t, 1, reg.Len())
}

func TestReconcileSkipsBlankRecords(t *testing.T) {
	reg := registry.New()
	res := registry.Reconcile(reg, []species.Record{{Chinese: "  "}})
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 0, reg.Len())
}

func TestWriterSerialisesConcurrentUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "all_birds.csv")
	w := registry.NewWriter(path)

	var wg sync.WaitGroup
	names := []string{"Mallard", "Grey Heron", "Little Egret", "Common Kingfisher", "Oriental Magpie", "Japanese Tit"}
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := w.Reconcile(context.Background(), []species.Record{{English: name}})
			assert.NoError(t, err)
		}(name)
	}
	wg.Wait()

	reg, err := w.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, len(names), reg.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `little_egret,"","Little Egret","",Little_Egret`)
}

func TestWriterUpdateErrorLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "all_birds.csv")
	w := registry.NewWriter(path)
	err := w.Update(context.Background(), func(reg *registry.Registry) error {
		reg.Put(registry.Entry{Slug: "x"})
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Japanese Tit（大山雀）", registry.Entry{Slug: "japanese_tit", English: "Japanese Tit", Chinese: "大山雀"}.DisplayName())
	assert.Equal(t, "mallard", registry.Entry{Slug: "mallard"}.DisplayName())
}
