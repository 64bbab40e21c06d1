package annotation

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestObjectKeepsOrder(t *testing.T) {
	in := `{"z": 1, "a": {"y": [1, 2], "b": null}, "m": "text"}`
	doc := NewObject()
	if err := json.Unmarshal([]byte(in), doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(doc.Keys(), []string{"z", "a", "m"}) {
		t.Errorf("Unexpected key order %v", doc.Keys())
	}

	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != `{"z":1,"a":{"y":[1,2],"b":null},"m":"text"}` {
		t.Errorf("Unexpected output %s", out)
	}
}

func TestObjectSetAndDelete(t *testing.T) {
	doc := NewObject()
	_ = doc.Set("first", 1)
	_ = doc.Set("second", "two")
	_ = doc.Set("first", 10)

	if !reflect.DeepEqual(doc.Keys(), []string{"first", "second"}) {
		t.Errorf("Overwriting a key should keep its position, got %v", doc.Keys())
	}
	if v, _ := doc.Get("first"); string(v) != "10" {
		t.Errorf("Expected 10, got %s", v)
	}

	doc.Delete("first")
	doc.Delete("missing")
	if doc.Len() != 1 || doc.Has("first") {
		t.Errorf("Delete failed, keys %v", doc.Keys())
	}
}

func TestObjectSetPath(t *testing.T) {
	doc := NewObject()
	if err := json.Unmarshal([]byte(`{"a": {"keep": 1}}`), doc); err != nil {
		t.Fatal(err)
	}

	if err := doc.SetPath(true, "a", "b", "c"); err != nil {
		t.Fatalf("SetPath failed: %v", err)
	}
	if v, ok := doc.GetPath("a", "b", "c"); !ok || string(v) != "true" {
		t.Errorf("Expected true at a.b.c, got %s", v)
	}
	if v, ok := doc.GetPath("a", "keep"); !ok || string(v) != "1" {
		t.Errorf("Sibling lost, got %s", v)
	}
	if _, ok := doc.GetPath("a", "missing", "c"); ok {
		t.Error("Expected missing path")
	}

	if err := doc.SetPath(1, "a", "keep", "x"); err == nil {
		t.Error("Expected error descending into a non-object")
	}
	if err := doc.SetPath(1); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestObjectClone(t *testing.T) {
	doc := NewObject()
	_ = doc.Set("a", 1)
	c := doc.Clone()
	_ = c.Set("b", 2)

	if doc.Has("b") {
		t.Error("Clone shares key table with original")
	}
}

func TestObjectRejectsNonObject(t *testing.T) {
	doc := NewObject()
	if err := json.Unmarshal([]byte(`["a"]`), doc); err == nil {
		t.Error("Expected error for array input")
	}
}

func TestEncodeDocument(t *testing.T) {
	doc := NewObject()
	_ = doc.Set("name", "이름 & <tag>")
	_ = doc.Set("list", []int{})
	_ = doc.Set("nested", map[string]int{"x": 1})

	out, err := encodeDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n    \"name\": \"이름 & <tag>\",\n    \"list\": [],\n    \"nested\": {\n        \"x\": 1\n    }\n}"
	if string(out) != want {
		t.Errorf("Unexpected encoding:\n%s\nwant:\n%s", out, want)
	}
	if strings.HasSuffix(string(out), "\n") {
		t.Error("Encoded document should not end with a newline")
	}
}

func TestEncodeDocumentLineSeparators(t *testing.T) {
	doc := NewObject()
	_ = doc.Set("label", "a\u2028b\u2029c")
	_ = doc.Set("literal", `x\u2028`)

	out, err := encodeDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	if !strings.Contains(text, "\"a\u2028b\u2029c\"") {
		t.Errorf("Expected raw line separators, got %q", text)
	}
	if !strings.Contains(text, `"x\\u2028"`) {
		t.Errorf("Escaped backslash should stay escaped, got %q", text)
	}

	back := NewObject()
	if err := json.Unmarshal(out, back); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	for key, want := range map[string]string{"label": "a\u2028b\u2029c", "literal": `x\u2028`} {
		raw, _ := back.Get(key)
		var got string
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}
}
