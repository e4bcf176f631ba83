package spec

import (
	"errors"
	"testing"

	"transformd/internal/rendition"
)

func TestBuild_PreservesOrderAndCopiesOptions(t *testing.T) {
	opts := map[string]string{"resizeWidth": "100"}
	f := File{Definitions: []DefinitionSpec{
		{Name: "doclib", TargetMimetype: "application/x-shockwave-flash"},
		{Name: "imgpreview", TargetMimetype: "image/png", Options: opts},
	}}
	defs, err := f.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(defs) != 2 || defs[0].Name != "doclib" || defs[1].Name != "imgpreview" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
	opts["resizeWidth"] = "999"
	if defs[1].Options["resizeWidth"] != "100" {
		t.Fatal("options aliased to the file's map")
	}
}

func TestBuild_Rejects(t *testing.T) {
	f := File{Definitions: []DefinitionSpec{
		{Name: "a", TargetMimetype: "image/png"},
		{Name: "a", TargetMimetype: "image/jpeg"},
		{Name: "", TargetMimetype: "image/png"},
		{Name: "b"},
	}}
	_, err := f.Build()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, rendition.ErrDuplicateDefinition) {
		t.Fatalf("want duplicate error, got %v", err)
	}
}
