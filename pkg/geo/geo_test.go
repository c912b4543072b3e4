package geo

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// Centroids are spaced along a latitude line so expected ordering is obvious:
// each 0.05 degrees of latitude is roughly 3.45 miles.
const testDataset = `zip,city,state,lat,lng
10001,New York,NY,40.7506,-73.9972
10002,New York,NY,40.7156,-73.9862
10003,New York,NY,40.7317,-73.9891
10451,Bronx,NY,40.8200,-73.9255
90210,Beverly Hills,CA,34.1030,-118.4105
501,Holtsville,NY,40.8154,-73.0450
`

func mustIndex(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zips.csv")
	if err := os.WriteFile(path, []byte(testDataset), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := NewIndex(path, slog.Default())
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	return idx
}

func TestResolve(t *testing.T) {
	idx := mustIndex(t)

	tests := []struct {
		name    string
		zip     string
		wantLat float64
		wantErr bool
	}{
		{name: "known zip", zip: "10001", wantLat: 40.7506},
		{name: "zero-padded lookup of short dataset zip", zip: "00501", wantLat: 40.8154},
		{name: "short query zip", zip: "501", wantLat: 40.8154},
		{name: "unknown zip", zip: "99999", wantErr: true},
		{name: "non-numeric", zip: "1000a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.Resolve(tt.zip)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve(%q) error = %v, wantErr %v", tt.zip, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrUnknownZip) {
					t.Errorf("Resolve(%q) error = %v, want ErrUnknownZip", tt.zip, err)
				}
				return
			}
			if got.Lat != tt.wantLat {
				t.Errorf("Resolve(%q) lat = %v, want %v", tt.zip, got.Lat, tt.wantLat)
			}
		})
	}
}

func TestNearbyOrderingAndExclusion(t *testing.T) {
	idx := mustIndex(t)

	got, err := idx.Nearby("10001", 10, 5)
	if err != nil {
		t.Fatalf("Nearby() error = %v", err)
	}

	wantOrder := []string{"10003", "10002", "10451"}
	if len(got) != len(wantOrder) {
		t.Fatalf("Nearby() returned %d candidates, want %d (%v)", len(got), len(wantOrder), got)
	}
	for i, c := range got {
		if c.Zip != wantOrder[i] {
			t.Errorf("candidate[%d] = %s, want %s", i, c.Zip, wantOrder[i])
		}
		if c.Zip == "10001" {
			t.Error("Nearby() must never include the origin zip")
		}
		if i > 0 && got[i-1].DistanceMiles > c.DistanceMiles {
			t.Errorf("candidates not in non-decreasing distance order at %d: %v > %v",
				i, got[i-1].DistanceMiles, c.DistanceMiles)
		}
	}
}

func TestNearbyLimits(t *testing.T) {
	idx := mustIndex(t)

	tests := []struct {
		name      string
		zip       string
		radius    float64
		max       int
		wantCount int
		wantErr   bool
	}{
		{name: "max caps results", zip: "10001", radius: 10, max: 1, wantCount: 1},
		{name: "radius excludes far zips", zip: "10001", radius: 3, max: 5, wantCount: 2},
		{name: "isolated zip has no neighbors", zip: "90210", radius: 10, max: 5, wantCount: 0},
		{name: "zero max", zip: "10001", radius: 10, max: 0, wantCount: 0},
		{name: "unknown origin", zip: "99999", radius: 10, max: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.Nearby(tt.zip, tt.radius, tt.max)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Nearby() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownZip) {
					t.Errorf("Nearby() error = %v, want ErrUnknownZip", err)
				}
				return
			}
			if len(got) != tt.wantCount {
				t.Errorf("Nearby() returned %d candidates, want %d (%v)", len(got), tt.wantCount, got)
			}
		})
	}
}

func TestNormalizeZip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10001", "10001"},
		{"501", "00501"},
		{" 501 ", "00501"},
		{"", ""},
		{"123456", ""},
		{"12a45", ""},
	}
	for _, tt := range tests {
		if got := normalizeZip(tt.in); got != tt.want {
			t.Errorf("normalizeZip(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
