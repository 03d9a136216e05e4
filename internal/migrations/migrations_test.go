package migrations

import (
	"reflect"
	"testing"

	"github.com/courseforge/courseforge/internal/content"
)

func TestRun_RenamesLegacyComponents(t *testing.T) {
	it := &content.Item{Type: content.TypeComponent, Component: "oldtext", Properties: map[string]any{}}
	Run(it, &Context{ComponentRenames: map[string]string{"oldtext": "adapt-contrib-text"}})
	if it.Component != "adapt-contrib-text" {
		t.Fatalf("component = %q", it.Component)
	}
}

func TestRun_CoercesStringNumbers(t *testing.T) {
	it := &content.Item{Type: content.TypeBlock, Properties: map[string]any{
		"_trackingId":  "12",
		"_scoreToPass": " 75 ",
		"title":        "7", // not a known numeric field, stays a string
	}}
	Run(it, nil)
	if v, ok := it.Properties["_trackingId"].(float64); !ok || v != 12 {
		t.Fatalf("_trackingId = %#v", it.Properties["_trackingId"])
	}
	if v, ok := it.Properties["_scoreToPass"].(float64); !ok || v != 75 {
		t.Fatalf("_scoreToPass = %#v", it.Properties["_scoreToPass"])
	}
	if it.Properties["title"] != "7" {
		t.Fatalf("title = %#v", it.Properties["title"])
	}
}

func TestRun_DropsEmptyFields(t *testing.T) {
	it := &content.Item{Type: content.TypePage, Properties: map[string]any{
		"body":      nil,
		"_graphic":  map[string]any{},
		"populated": map[string]any{"k": "v"},
	}}
	Run(it, nil)
	if _, ok := it.Properties["body"]; ok {
		t.Fatal("nil field survived")
	}
	if _, ok := it.Properties["_graphic"]; ok {
		t.Fatal("empty object survived")
	}
	if _, ok := it.Properties["populated"]; !ok {
		t.Fatal("populated object dropped")
	}
}

func TestRun_NormalizesAssetRefObjects(t *testing.T) {
	it := &content.Item{Type: content.TypeComponent, Properties: map[string]any{
		"_graphic": map[string]any{
			"alt": "a picture",
			"src": map[string]any{"_src": "assets/images/pic.png"},
		},
		"_media": map[string]any{"src": "assets/video/clip.mp4"},
		"items": []any{
			map[string]any{"_src": "assets/images/one.png"},
		},
	}}
	Run(it, nil)
	graphic := it.Properties["_graphic"].(map[string]any)
	if graphic["src"] != "assets/images/pic.png" {
		t.Fatalf("nested _src not flattened: %#v", graphic["src"])
	}
	if it.Properties["_media"] != "assets/video/clip.mp4" {
		t.Fatalf("single-key src object not flattened: %#v", it.Properties["_media"])
	}
	items := it.Properties["items"].([]any)
	if items[0] != "assets/images/one.png" {
		t.Fatalf("array element not flattened: %#v", items[0])
	}
}

func TestRun_Idempotent(t *testing.T) {
	mctx := &Context{ComponentRenames: map[string]string{"oldtext": "adapt-contrib-text"}}
	it := &content.Item{Type: content.TypeComponent, Component: "oldtext", Properties: map[string]any{
		"_trackingId": "3",
		"body":        nil,
		"_graphic":    map[string]any{"src": map[string]any{"_src": "assets/images/pic.png"}, "alt": "x"},
	}}
	Run(it, mctx)
	first := it.Clone()
	Run(it, mctx)
	if !reflect.DeepEqual(first.Properties, it.Properties) || first.Component != it.Component {
		t.Fatalf("second run changed the item:\n%#v\n%#v", first.Properties, it.Properties)
	}
}
