package cafe

import (
	"sync"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		root    string
		virtual string
		want    string
	}{
		{"/cache", "/a/b.txt", "/cache//a/b.txt"},
		{"/cache", "a/b.txt", "/cache/a/b.txt"},
		{"/cache/", "/x", "/cache///x"},
		{"/cache", "", "/cache/"},
		{"", "/x", "//x"},
		{"/cache", "/../etc/passwd", "/cache//../etc/passwd"},
		{"relative", "f", "relative/f"},
		{"/cache", "/dir with spaces/ü", "/cache//dir with spaces/ü"},
	}

	for _, tt := range tests {
		r := NewResolver(tt.root)
		if got := r.Resolve(tt.virtual); got != tt.want {
			t.Errorf("Resolve(%q) with root %q = %q, want %q", tt.virtual, tt.root, got, tt.want)
		}
	}
}

func TestResolveIndependentResults(t *testing.T) {
	r := NewResolver("/cache")

	first := r.Resolve("/one")
	second := r.Resolve("/two")
	if first != "/cache//one" {
		t.Errorf("first result changed to %q", first)
	}
	if second != "/cache//two" {
		t.Errorf("second result = %q", second)
	}
	if r.Root() != "/cache" {
		t.Errorf("Root() = %q", r.Root())
	}
}

func TestResolveConcurrent(t *testing.T) {
	r := NewResolver("/cache")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			virtual := "/f" + string(rune('a'+i%26))
			if got := r.Resolve(virtual); got != "/cache/"+virtual {
				t.Errorf("Resolve(%q) = %q", virtual, got)
			}
		}(i)
	}
	wg.Wait()
}
