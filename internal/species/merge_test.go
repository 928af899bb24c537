package species_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/MY221B/bird-download/internal/species"
)

func makeRecords(prefix string, start, count int) []species.Record {
	out := make([]species.Record, 0, count)
	for i := start; i < start+count; i++ {
		out = append(out, species.Record{
			Chinese:    fmt.Sprintf("鸟%d", i),
			English:    fmt.Sprintf("%s Bird %d", prefix, i),
			Scientific: fmt.Sprintf("Avis sp%d", i),
		})
	}
	return out
}

func TestMergeTwoAliasesWithOverlap(t *testing.T) {
	first := makeRecords("north", 0, 5)
	second := makeRecords("south", 2, 7) // keys 2..8, overlapping 2,3,4
	merged := species.Merge(first, second)
	if len(merged) != 9 {
		t.Fatalf("expected 9 unique records, got %d", len(merged))
	}
	// First-seen wins: overlapping keys keep the north english name.
	if merged[2].English != "north Bird 2" {
		t.Fatalf("expected first-seen record retained, got %+v", merged[2])
	}
	if merged[5].Chinese != "鸟5" {
		t.Fatalf("unexpected order: %+v", merged)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	list := append(makeRecords("a", 0, 4), makeRecords("b", 1, 2)...)
	once := species.Merge(list)
	twice := species.Merge(list, list)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge not idempotent:\n%v\n%v", once, twice)
	}
	if again := species.Merge(once); !reflect.DeepEqual(once, again) {
		t.Fatalf("re-merging merged output changed it")
	}
}

func TestMergerCountsAdditions(t *testing.T) {
	var m species.Merger
	if added := m.Add(makeRecords("x", 0, 3)); added != 3 {
		t.Fatalf("expected 3 additions, got %d", added)
	}
	if added := m.Add(makeRecords("y", 1, 3)); added != 1 {
		t.Fatalf("expected 1 addition, got %d", added)
	}
	if m.Len() != 4 {
		t.Fatalf("unexpected length %d", m.Len())
	}
}

func TestKeyIgnoresEnglishName(t *testing.T) {
	a := species.Record{Chinese: "红胁蓝尾鸲", English: "Red-flanked Bluetail", Scientific: "Tarsiger cyanurus"}
	b := species.Record{Chinese: "红胁蓝尾鸲", English: "Orange-flanked Bush-Robin", Scientific: "Tarsiger cyanurus"}
	if len(species.Merge([]species.Record{a, b})) != 1 {
		t.Fatal("records differing only in english name must merge")
	}
}
