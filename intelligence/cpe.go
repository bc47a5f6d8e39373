package intelligence

import (
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"
)

// softwareAliases maps detected software names to the (vendor, product)
// pair used by the official CPE dictionary. Keys are lowercased with
// spaces collapsed to underscores; hyphen/underscore variants are tried.
var softwareAliases = map[string][2]string{
	"microsoft_iis":     {"microsoft", "internet_information_services"},
	"pastewsgiserver":   {"python", "paste"},
	"paste":             {"python", "paste"},
	"phusion_passenger": {"phusion", "passenger"},
	"passenger":         {"phusion", "passenger"},
}

var nameSplitRe = regexp.MustCompile(`[-_]`)

// NormalizeSoftwareName maps a detected name to the official
// (vendor, product) pair, or ok=false when no alias is known.
func NormalizeSoftwareName(detected string) (vendor, product string, ok bool) {
	base := strings.ToLower(detected)
	if i := strings.Index(base, "/"); i >= 0 {
		base = base[:i]
	}
	base = strings.ReplaceAll(base, " ", "_")

	variants := []string{
		base,
		strings.ReplaceAll(base, "-", "_"),
		strings.ReplaceAll(base, "_", "-"),
	}
	for _, v := range variants {
		if pair, found := softwareAliases[v]; found {
			return pair[0], pair[1], true
		}
	}
	return "", "", false
}

// SplitName guesses name tokens from a raw detected name by splitting on
// hyphen and underscore.
func SplitName(name string) []string {
	return nameSplitRe.Split(name, -1)
}

type cpeEntry struct {
	lower string
	name  string
}

type tripleKey struct {
	vendor  string
	product string
	version string
}

type pairKey struct {
	product string
	version string
}

// CpeIndex holds the in-memory lookup structures built from the official
// CPE dictionary XML. Construction is lazy and idempotent; once built the
// structures are immutable and shared without locking.
type CpeIndex struct {
	path string

	once    sync.Once
	loadErr error

	entries []cpeEntry
	triple  map[tripleKey][]string
	pair    map[pairKey][]string
}

// NewCpeIndex creates an index bound to a dictionary file. The file is not
// read until the first lookup (or an explicit Load).
func NewCpeIndex(path string) *CpeIndex {
	return &CpeIndex{
		path:   path,
		triple: make(map[tripleKey][]string),
		pair:   make(map[pairKey][]string),
	}
}

// Load parses the dictionary. Safe to call from concurrent lookups; only
// the first call does work.
func (ix *CpeIndex) Load() error {
	ix.once.Do(func() {
		f, err := os.Open(ix.path)
		if err != nil {
			ix.loadErr = fmt.Errorf("open cpe dictionary: %w", err)
			return
		}
		defer f.Close()
		ix.loadErr = ix.parse(f)
		if ix.loadErr == nil {
			log.Printf("[CpeIndex] Loaded %d CPE entries from %s", len(ix.entries), ix.path)
		}
	})
	return ix.loadErr
}

// parse stream-decodes the dictionary, indexing every cpe23-item name.
// The file is large (hundreds of MB), so we never hold the DOM.
func (ix *CpeIndex) parse(r io.Reader) error {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse cpe dictionary: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "cpe23-item" {
			continue
		}

		var name string
		for _, attr := range start.Attr {
			if attr.Name.Local == "name" {
				name = attr.Value
				break
			}
		}
		if name == "" {
			continue
		}
		ix.add(name)
	}
}

func (ix *CpeIndex) add(name string) {
	lower := strings.ToLower(name)
	ix.entries = append(ix.entries, cpeEntry{lower: lower, name: name})

	// cpe:2.3:a:vendor:product:version:...
	parts := strings.Split(name, ":")
	if len(parts) < 6 {
		return
	}
	vendor := strings.ToLower(parts[3])
	product := strings.ToLower(parts[4])
	version := strings.ToLower(parts[5])

	ix.triple[tripleKey{vendor, product, version}] = append(ix.triple[tripleKey{vendor, product, version}], name)
	ix.pair[pairKey{product, version}] = append(ix.pair[pairKey{product, version}], name)
}

// Len reports the number of indexed entries.
func (ix *CpeIndex) Len() int {
	return len(ix.entries)
}

// Find resolves name tokens plus a version to a full CPE name. The match
// order is fixed: exact (vendor, product, version) triple, then
// (product, version) pair, then a linear scan requiring every token and
// the version to appear as substrings. First hit wins.
func (ix *CpeIndex) Find(version string, names ...string) (string, bool) {
	if err := ix.Load(); err != nil {
		log.Printf("[CpeIndex] load failed: %v", err)
		return "", false
	}

	version = strings.ToLower(version)
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}

	if len(lowered) == 2 {
		if hits := ix.triple[tripleKey{lowered[0], lowered[1], version}]; len(hits) > 0 {
			return hits[0], true
		}
	}

	if len(lowered) == 1 {
		if hits := ix.pair[pairKey{lowered[0], version}]; len(hits) > 0 {
			return hits[0], true
		}
	}

	for _, e := range ix.entries {
		if !strings.Contains(e.lower, version) {
			continue
		}
		all := true
		for _, n := range lowered {
			if !strings.Contains(e.lower, n) {
				all = false
				break
			}
		}
		if all {
			return e.name, true
		}
	}
	return "", false
}
