package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/grid"
)

const lineJSON = `{
	"comment": "short line",
	"rails": [
		{"pos": "1,0,0", "shapes": ["east-west"]},
		{"pos": "2,0,0", "shapes": ["east-west"]},
		{"pos": "3,0,0", "shapes": ["east-west", "south-west"]}
	],
	"signals": [{"pos": "2,0,-1", "rail": "2,0,0", "facing": "east"}],
	"stations": [{"pos": "3,0,-1", "rail": "3,0,0", "name": "end"}],
	"trains": {
		"00000000-0000-0000-0000-00000000000b": {"positions": ["1,0,0"], "heading": "east", "destination": "end"},
		"00000000-0000-0000-0000-00000000000a": {"positions": ["2,0,0", "1,0,0"], "heading": "west"}
	}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	want := Settings{
		Listen:      "localhost:8080",
		Tick:        100 * time.Millisecond,
		DB:          ":memory:",
		LogLevel:    "info",
		CORSOrigins: []string{"*"},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("RAILNET_LISTEN", ":9000")
	t.Setenv("RAILNET_TICK", "250ms")
	t.Setenv("RAILNET_WORLD", "/tmp/world.json")
	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.Listen != ":9000" {
		t.Errorf("listen = %q", s.Listen)
	}
	if s.Tick != 250*time.Millisecond {
		t.Errorf("tick = %s", s.Tick)
	}
	if s.World != "/tmp/world.json" {
		t.Errorf("world = %q", s.World)
	}
}

func TestReadLayout(t *testing.T) {
	l, err := ReadLayout(writeFile(t, "world.json", lineJSON))
	if err != nil {
		t.Fatal(err)
	}
	cells, err := l.Descriptors()
	if err != nil {
		t.Fatal(err)
	}
	want := map[grid.Pos]grid.Descriptor{
		{1, 0, 0}:  grid.Rail(railnet.EastWest),
		{2, 0, 0}:  grid.Rail(railnet.EastWest),
		{3, 0, 0}:  grid.Rail(railnet.EastWest, railnet.SouthWest),
		{2, 0, -1}: grid.Signal(grid.Pos{2, 0, 0}, railnet.East),
		{3, 0, -1}: grid.Station(grid.Pos{3, 0, 0}, "end"),
	}
	if diff := cmp.Diff(want, cells); diff != "" {
		t.Fatalf("cells (-want +got):\n%s", diff)
	}

	obs := l.Observations()
	wantObs := []grid.Observation{
		{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a"), Positions: []grid.Pos{{2, 0, 0}, {1, 0, 0}}, Heading: railnet.West},
		{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"), Positions: []grid.Pos{{1, 0, 0}}, Heading: railnet.East, Destination: "end"},
	}
	if diff := cmp.Diff(wantObs, obs); diff != "" {
		t.Fatalf("observations (-want +got):\n%s", diff)
	}
}

func TestReadLayoutErrors(t *testing.T) {
	for name, content := range map[string]string{
		"duplicate": `{"rails": [{"pos": "1,0,0", "shapes": ["east-west"]}], "stations": [{"pos": "1,0,0", "rail": "1,0,0", "name": "x"}]}`,
		"no shapes": `{"rails": [{"pos": "1,0,0", "shapes": []}]}`,
		"bad id":    `{"rails": [], "trains": {"nope": {"positions": []}}}`,
		"bad shape": `{"rails": [{"pos": "1,0,0", "shapes": ["sideways"]}]}`,
		"unknown":   `{"rails": [], "switches": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadLayout(writeFile(t, "world.json", content)); err == nil {
				t.Fatal("no error")
			}
		})
	}
}

func TestFromCells(t *testing.T) {
	cells := grid.InitTestbench4().Cells()
	l := FromCells(cells)
	data, err := json.Marshal(l)
	if err != nil {
		t.Fatal(err)
	}
	var l2 Layout
	if err := json.Unmarshal(data, &l2); err != nil {
		t.Fatal(err)
	}
	got, err := l2.Descriptors()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cells, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestWatcher(t *testing.T) {
	path := writeFile(t, "world.json", lineJSON)
	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Layout, 4)
	go w.Run(ctx, func(l *Layout) { got <- l })

	changed := strings.Replace(lineJSON, `"name": "end"`, `"name": "terminal"`, 1)
	if err := os.WriteFile(path, []byte(changed), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case l := <-got:
		if l.Stations[0].Name != "terminal" {
			t.Fatalf("reloaded station %q", l.Stations[0].Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
}
