package scope

import (
	"reflect"
	"testing"
)

// fakeDirectory mirrors the shape of the live world directory with a
// fixed tree: Aether and Primal under North-America, Chaos under Europe.
type fakeDirectory struct{}

var dirWorlds = map[int]string{
	21: "Ravana",
	40: "Jenova",
	58: "Kujata",
	74: "Coeurl",
	80: "Cerberus",
}

var dirDCs = map[string][]int{
	"Aether": {21, 40, 58},
	"Primal": {74},
	"Chaos":  {80},
}

var dirRegions = map[string][]string{
	"North-America": {"Aether", "Primal"},
	"Europe":        {"Chaos"},
}

func (fakeDirectory) WorldName(id int) (string, bool) {
	name, ok := dirWorlds[id]
	return name, ok
}

func (fakeDirectory) WorldID(name string) (int, bool) {
	for id, n := range dirWorlds {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

func (fakeDirectory) DataCenterWorlds(name string) []int {
	return dirDCs[name]
}

func (fakeDirectory) RegionDataCenters(name string) []string {
	return dirRegions[name]
}

func TestResolveByDataCenter(t *testing.T) {
	got := Resolve(Selection{
		Mode:        ModeDataCenter,
		DataCenters: []string{"Aether"},
	}, fakeDirectory{})

	want := []Resolved{{Label: "Aether", WorldIDs: []int{21, 40, 58}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveByDataCenterSkipsEmpty(t *testing.T) {
	got := Resolve(Selection{
		Mode:        ModeDataCenter,
		DataCenters: []string{"Atlantis", "Primal"},
	}, fakeDirectory{})

	want := []Resolved{{Label: "Primal", WorldIDs: []int{74}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveByWorldSkipsUnknownIDs(t *testing.T) {
	got := Resolve(Selection{
		Mode:     ModeWorld,
		WorldIDs: []int{40, 999, 74},
	}, fakeDirectory{})

	want := []Resolved{
		{Label: "Jenova", WorldIDs: []int{40}},
		{Label: "Coeurl", WorldIDs: []int{74}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveByRegionUnionsDataCenters(t *testing.T) {
	got := Resolve(Selection{
		Mode:    ModeRegion,
		Regions: []string{"North-America"},
	}, fakeDirectory{})

	want := []Resolved{{Label: "North-America", WorldIDs: []int{21, 40, 58, 74}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveAllClassifiesDefault(t *testing.T) {
	cases := []struct {
		name    string
		def     string
		want    Resolved
	}{
		{"world name", "Coeurl", Resolved{Label: "Coeurl", WorldIDs: []int{74}}},
		{"dc name", "Aether", Resolved{Label: "Aether", WorldIDs: []int{21, 40, 58}}},
		{"region name", "Europe", Resolved{Label: "Europe", WorldIDs: []int{80}}},
		{"unknown", "Nowhere", Resolved{Label: "Nowhere"}},
	}

	for _, tc := range cases {
		got := Resolve(Selection{Mode: ModeAll, DefaultScope: tc.def}, fakeDirectory{})
		if len(got) != 1 {
			t.Fatalf("%s: Resolve returned %d pairs, want 1", tc.name, len(got))
		}
		if got[0].Label != tc.want.Label || !reflect.DeepEqual(got[0].WorldIDs, tc.want.WorldIDs) {
			t.Errorf("%s: Resolve = %v, want %v", tc.name, got[0], tc.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for s, want := range map[string]Mode{
		"all":        ModeAll,
		"world":      ModeWorld,
		"datacenter": ModeDataCenter,
		"dc":         ModeDataCenter,
		"region":     ModeRegion,
	} {
		got, err := ParseMode(s)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", s, got, err)
		}
	}

	if _, err := ParseMode("galaxy"); err == nil {
		t.Error("ParseMode accepted unknown mode")
	}
}
