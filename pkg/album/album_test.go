package album

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mplewis/photolog/pkg/conc"
)

func writeFile(t *testing.T, path string, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Descriptor
		wantErr bool
	}{
		{
			name: "complete",
			in:   "name: Japan\ndesc: Tokyo, Kyoto, Hiroshima, and Osaka\norder: 2\n",
			want: Descriptor{Name: "Japan", Desc: "Tokyo, Kyoto, Hiroshima, and Osaka", Order: 2},
		},
		{name: "missing name", in: "desc: nope\n", wantErr: true},
		{name: "empty", in: "  \n", wantErr: true},
		{name: "malformed", in: "name: [unterminated\n", wantErr: true},
		{name: "wrong type", in: "name: X\norder: first\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "japan", DescriptorFile), "name: Japan\ndesc: trip\norder: 2\n")
	writeFile(t, filepath.Join(src, "bwca", DescriptorFile), "name: BWCA\ndesc: canoe\norder: 1\n")
	writeFile(t, filepath.Join(src, "broken", DescriptorFile), "name: [oops\n")
	writeFile(t, filepath.Join(src, "plain", "a.jpg"), "x")
	// nested descriptors are not albums
	writeFile(t, filepath.Join(src, "japan", "kyoto", DescriptorFile), "name: Kyoto\ndesc: x\norder: 0\n")

	got, err := Discover(context.Background(), &conc.Runner{Workers: 2}, src)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []Album{
		{Key: "bwca", Descriptor: Descriptor{Name: "BWCA", Desc: "canoe", Order: 1}},
		{Key: "japan", Descriptor: Descriptor{Name: "Japan", Desc: "trip", Order: 2}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Discover() mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverNone(t *testing.T) {
	got, err := Discover(context.Background(), &conc.Runner{}, t.TempDir())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Discover() = %v, want none", got)
	}
}

func TestResolve(t *testing.T) {
	albums := []Album{{Key: "japan"}, {Key: "jap"}, {Key: "europe"}}
	tests := map[string]string{
		"japan/tokyo/a.jpg": "japan",
		"jap/a.jpg":         "jap",
		"japanese/a.jpg":    "",
		"europe/a.jpg":      "europe",
		"a.jpg":             "",
		"plain/a.jpg":       "",
	}
	for in, want := range tests {
		if got := Resolve(in, albums); got != want {
			t.Errorf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}
