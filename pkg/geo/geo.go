// Package geo resolves US zip codes to centroids and enumerates nearby zips
// by great-circle distance, backed by an R-tree over the reference dataset.
package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dhconnelly/rtreego"

	"lead-submitter/pkg/models"
)

// ErrUnknownZip is returned when a zip code is not in the reference
// dataset. It marks a dead-end branch, not a fatal pipeline error.
var ErrUnknownZip = errors.New("zip code not in reference dataset")

const (
	milesPerLatDegree = 69.0
	earthRadiusMiles  = 3958.8
)

// Coordinates is a zip centroid.
type Coordinates struct {
	Lat float64
	Lon float64
}

type zipEntry struct {
	zip   string
	city  string
	state string
	coord Coordinates
}

func (e *zipEntry) Bounds() rtreego.Rect {
	p := rtreego.Point{e.coord.Lat, e.coord.Lon}
	return p.ToRect(1e-6)
}

// Index holds the zip centroid dataset and its spatial index. It is
// immutable after construction and safe for concurrent lookups.
type Index struct {
	entries map[string]*zipEntry
	tree    *rtreego.Rtree
	logger  *slog.Logger
}

// NewIndex loads a zip centroid CSV (zip,city,state,lat,lng) and builds the
// R-tree. A missing or unreadable dataset is a startup misconfiguration and
// fails construction.
func NewIndex(path string, logger *slog.Logger) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open zip dataset: %w", err)
	}
	defer f.Close()

	idx, err := newIndexFromReader(f, logger)
	if err != nil {
		return nil, fmt.Errorf("load zip dataset %s: %w", path, err)
	}
	logger.Info("zip dataset loaded", "path", path, "zips", len(idx.entries))
	return idx, nil
}

func newIndexFromReader(r io.Reader, logger *slog.Logger) (*Index, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5

	idx := &Index{
		entries: make(map[string]*zipEntry),
		tree:    rtreego.NewTree(2, 25, 50),
		logger:  logger,
	}

	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse record: %w", err)
		}
		line++

		zip := normalizeZip(rec[0])
		if line == 1 && zip == "" {
			// Header row.
			continue
		}
		if zip == "" {
			logger.Debug("skipping dataset row with invalid zip", "raw", rec[0])
			continue
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if latErr != nil || lonErr != nil {
			logger.Debug("skipping dataset row with invalid coordinates", "zip", zip)
			continue
		}

		entry := &zipEntry{
			zip:   zip,
			city:  strings.TrimSpace(rec[1]),
			state: strings.TrimSpace(rec[2]),
			coord: Coordinates{Lat: lat, Lon: lon},
		}
		if _, dup := idx.entries[zip]; dup {
			continue
		}
		idx.entries[zip] = entry
		idx.tree.Insert(entry)
	}

	if len(idx.entries) == 0 {
		return nil, errors.New("dataset contains no usable zip centroids")
	}
	return idx, nil
}

// normalizeZip left-pads numeric zips that lost leading zeros in the source
// data and rejects anything that is not 1-5 digits.
func normalizeZip(raw string) string {
	z := strings.TrimSpace(raw)
	if z == "" || len(z) > 5 {
		return ""
	}
	for _, c := range z {
		if c < '0' || c > '9' {
			return ""
		}
	}
	for len(z) < 5 {
		z = "0" + z
	}
	return z
}

// Resolve returns the centroid for a zip, or ErrUnknownZip.
func (idx *Index) Resolve(zip string) (Coordinates, error) {
	entry, ok := idx.entries[normalizeZip(zip)]
	if !ok {
		return Coordinates{}, fmt.Errorf("resolve %q: %w", zip, ErrUnknownZip)
	}
	return entry.coord, nil
}

// Nearby returns up to max zip codes within radiusMiles of the origin zip,
// ordered by ascending great-circle distance. The origin itself is never
// included. Returns ErrUnknownZip when the origin is not in the dataset.
func (idx *Index) Nearby(zip string, radiusMiles float64, max int) ([]models.NearbyZipCandidate, error) {
	origin := normalizeZip(zip)
	entry, ok := idx.entries[origin]
	if !ok {
		return nil, fmt.Errorf("nearby %q: %w", zip, ErrUnknownZip)
	}
	if radiusMiles <= 0 || max <= 0 {
		return nil, nil
	}

	bb := boundingBox(entry.coord, radiusMiles)
	hits := idx.tree.SearchIntersect(bb)

	candidates := make([]models.NearbyZipCandidate, 0, len(hits))
	for _, h := range hits {
		e := h.(*zipEntry)
		if e.zip == origin {
			continue
		}
		d := haversineMiles(entry.coord, e.coord)
		if d > radiusMiles {
			continue
		}
		candidates = append(candidates, models.NearbyZipCandidate{Zip: e.zip, DistanceMiles: d})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceMiles != candidates[j].DistanceMiles {
			return candidates[i].DistanceMiles < candidates[j].DistanceMiles
		}
		return candidates[i].Zip < candidates[j].Zip
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates, nil
}

// boundingBox builds a lat/lon rectangle that fully contains the search
// circle; exact filtering happens afterwards with haversine.
func boundingBox(c Coordinates, radiusMiles float64) rtreego.Rect {
	dLat := radiusMiles / milesPerLatDegree
	cosLat := math.Cos(c.Lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLon := radiusMiles / (milesPerLatDegree * cosLat)

	p := rtreego.Point{c.Lat - dLat, c.Lon - dLon}
	rect, err := rtreego.NewRect(p, []float64{2 * dLat, 2 * dLon})
	if err != nil {
		// Degenerate only for non-positive lengths, which the guards above
		// rule out; fall back to a point rect.
		return rtreego.Point{c.Lat, c.Lon}.ToRect(1e-6)
	}
	return rect
}

func haversineMiles(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}
