package intelligence

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"

	"threatlens/database"
	"threatlens/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/semaphore"
)

// VulnerabilityStore abstracts the CVE reference store. Records join on
// the vulnerable_configuration CPE name.
type VulnerabilityStore interface {
	QueryByCPE(ctx context.Context, cpe string, limit int64) ([]models.CVERecord, error)
}

// MongoVulnStore queries the cvedb.cves collection.
type MongoVulnStore struct {
	collection *mongo.Collection
}

func NewMongoVulnStore() *MongoVulnStore {
	return &MongoVulnStore{
		collection: database.GetCVECollection(models.CollectionCVEs),
	}
}

func (s *MongoVulnStore) QueryByCPE(ctx context.Context, cpe string, limit int64) ([]models.CVERecord, error) {
	opts := options.Find().
		SetLimit(limit).
		SetProjection(bson.M{"id": 1, "cvss": 1, "cvss3": 1})

	cursor, err := s.collection.Find(ctx, bson.M{"vulnerable_configuration": cpe}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []models.CVERecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CVEResolver turns raw software findings into vulnerability alerts via
// the CPE dictionary and the CVE store.
type CVEResolver struct {
	index      *CpeIndex
	store      VulnerabilityStore
	queryLimit int64
	workers    int64
}

func NewCVEResolver(index *CpeIndex, store VulnerabilityStore, queryLimit, workers int) *CVEResolver {
	if queryLimit <= 0 {
		queryLimit = 5
	}
	if workers <= 0 {
		workers = 10
	}
	return &CVEResolver{
		index:      index,
		store:      store,
		queryLimit: int64(queryLimit),
		workers:    int64(workers),
	}
}

// resolvedFinding pairs a software candidate with the CPE it matched.
type resolvedFinding struct {
	ip       string
	port     int
	software string
	cpe      string
}

// ResolveVulnerabilities extracts software/version candidates from each
// banner, resolves them to CPE names, and queries the store for known
// CVEs. Results are sorted by CVSS descending; a missing score sorts
// last. Candidates that match no CPE are silently dropped.
func (r *CVEResolver) ResolveVulnerabilities(ctx context.Context, findings []models.SoftwareFinding) []models.SoftwareAlert {
	var resolved []resolvedFinding
	for _, f := range findings {
		for _, item := range ExtractSoftware(f.Banner) {
			cpe, ok := r.resolveCPE(item)
			if !ok {
				continue
			}
			resolved = append(resolved, resolvedFinding{
				ip:       f.IP,
				port:     f.Port,
				software: item,
				cpe:      cpe,
			})
		}
	}
	if len(resolved) == 0 {
		return nil
	}

	// Query each distinct CPE once. Multiple hosts often run the same
	// software, so the cache avoids duplicate round trips.
	cache := r.queryCPEs(ctx, resolved)

	var alerts []models.SoftwareAlert
	for _, rf := range resolved {
		for _, cve := range cache[rf.cpe] {
			alerts = append(alerts, models.SoftwareAlert{
				IP:       rf.ip,
				Port:     rf.port,
				Software: rf.software,
				CVEID:    cve.ID,
				CVSS:     cve.Score(),
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return cvssOrNull(alerts[i].CVSS) > cvssOrNull(alerts[j].CVSS)
	})
	return alerts
}

// resolveCPE maps one "name/version" candidate to a CPE name.
func (r *CVEResolver) resolveCPE(item string) (string, bool) {
	name, version, found := strings.Cut(item, "/")
	if !found {
		return "", false
	}
	name = strings.ToLower(name)
	version = strings.TrimSpace(version)

	if vendor, product, ok := NormalizeSoftwareName(name); ok {
		return r.index.Find(version, vendor, product)
	}

	parts := SplitName(name)
	if len(parts) >= 2 {
		return r.index.Find(version, parts[0], parts[1])
	}
	return r.index.Find(version, name)
}

// queryCPEs fetches CVE records for each distinct CPE, bounded by the
// worker semaphore.
func (r *CVEResolver) queryCPEs(ctx context.Context, resolved []resolvedFinding) map[string][]models.CVERecord {
	distinct := make(map[string]struct{})
	for _, rf := range resolved {
		distinct[rf.cpe] = struct{}{}
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		cache = make(map[string][]models.CVERecord, len(distinct))
		sem   = semaphore.NewWeighted(r.workers)
	)

	for cpe := range distinct {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(cpe string) {
			defer wg.Done()
			defer sem.Release(1)

			records, err := r.store.QueryByCPE(ctx, cpe, r.queryLimit)
			if err != nil {
				log.Printf("[CVEResolver] store query failed for %s: %v", cpe, err)
				return
			}
			mu.Lock()
			cache[cpe] = records
			mu.Unlock()
		}(cpe)
	}
	wg.Wait()
	return cache
}

func cvssOrNull(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
