package core

import (
	"reflect"
	"testing"
)

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMap[string, int]()
	m.Set("c", 3)
	m.Set("a", 1)
	m.Set("b", 2)

	want := []string{"c", "a", "b"}
	if got := m.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}

	m.Set("a", 10)
	if got := m.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("re-setting an existing key changed order: got %v, want %v", got, want)
	}
	v, ok := m.Get("a")
	if !ok || v != 10 {
		t.Errorf("Get(a) = %v, %v, want 10, true", v, ok)
	}
}

func TestOrderedMapDelete(t *testing.T) {
	m := NewOrderedMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)
	m.Delete("b")

	want := []string{"a", "c"}
	if got := m.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() after delete = %v, want %v", got, want)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if _, ok := m.Get("b"); ok {
		t.Errorf("Get(b) found after delete")
	}
}

func TestOrderedMapClone(t *testing.T) {
	m := NewOrderedMap[string, int]()
	m.Set("a", 1)
	clone := m.Clone()
	clone.Set("b", 2)

	if m.Len() != 1 {
		t.Errorf("original mutated by clone: Len() = %d, want 1", m.Len())
	}
	if clone.Len() != 2 {
		t.Errorf("clone.Len() = %d, want 2", clone.Len())
	}
}

func TestOrderedMapMarshalJSONPreservesOrder(t *testing.T) {
	m := NewOrderedMap[string, int]()
	m.Set("z", 1)
	m.Set("a", 2)

	b, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	want := `{"z":1,"a":2}`
	if string(b) != want {
		t.Errorf("MarshalJSON() = %s, want %s", b, want)
	}
}
