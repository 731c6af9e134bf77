// Package cache holds the content cache: an in-memory summary of everything
// the service can answer, populated by the cache feeder and read by the
// request path.
//
// Each facet has its own lock. Writers never hold more than one facet lock,
// and readers receive deep copies, so a reader always observes a facet either
// before or after a write but never halfway through one.
package cache

import (
	"maps"
	"sort"
	"sync"
	"time"

	"obscore/pkg/domain"
)

// Facet names one category of cached information.
type Facet string

const (
	FacetOfferings  Facet = "offerings"
	FacetProcedures Facet = "procedures"
	FacetFeatures   Facet = "features"
	FacetPhenomena  Facet = "phenomena"
	FacetGlobal     Facet = "global"
)

// Facets lists every facet in rebuild order.
func Facets() []Facet {
	return []Facet{FacetOfferings, FacetProcedures, FacetFeatures, FacetPhenomena, FacetGlobal}
}

// DefaultLocale is the locale name lookups fall back to when none is configured.
const DefaultLocale = "en"

// OfferingEntry is the cached view of one offering. Names holds localized
// names keyed by locale; Name is the untranslated name.
type OfferingEntry struct {
	ID             string             `json:"id"`
	Name           string             `json:"name,omitempty"`
	Names          map[string]string  `json:"names,omitempty"`
	Procedures     []string           `json:"procedures,omitempty"`
	Phenomena      []string           `json:"phenomena,omitempty"`
	Features       []string           `json:"features,omitempty"`
	Envelope       *domain.Envelope   `json:"envelope,omitempty"`
	PhenomenonTime *domain.TimePeriod `json:"phenomenon_time,omitempty"`
	ResultTime     *domain.TimePeriod `json:"result_time,omitempty"`
}

// ProcedureEntry is the cached view of one procedure.
type ProcedureEntry struct {
	ID      string   `json:"id"`
	Format  string   `json:"format,omitempty"`
	Parents []string `json:"parents,omitempty"`
}

// FeatureEntry is the cached view of one feature of interest.
type FeatureEntry struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Type    string   `json:"type,omitempty"`
	Parents []string `json:"parents,omitempty"`
}

// PhenomenonEntry is the cached view of one observable property.
type PhenomenonEntry struct {
	ID         string   `json:"id"`
	Procedures []string `json:"procedures,omitempty"`
	Offerings  []string `json:"offerings,omitempty"`
}

// GlobalEntry summarizes every observation in the store.
type GlobalEntry struct {
	PhenomenonTime *domain.TimePeriod `json:"phenomenon_time,omitempty"`
	ResultTime     *domain.TimePeriod `json:"result_time,omitempty"`
	Envelope       *domain.Envelope   `json:"envelope,omitempty"`
}

type facetLock struct {
	mu      sync.RWMutex
	updated time.Time
}

// Cache is the single writable content cache of a service.
type Cache struct {
	offeringsLock facetLock
	offerings     map[string]OfferingEntry

	proceduresLock facetLock
	procedures     map[string]ProcedureEntry

	featuresLock facetLock
	features     map[string]FeatureEntry

	phenomenaLock facetLock
	phenomena     map[string]PhenomenonEntry

	globalLock facetLock
	global     GlobalEntry

	defaultLocale string
	now           func() time.Time
}

// Option customises a Cache.
type Option func(*Cache)

// WithDefaultLocale sets the locale OfferingName falls back to.
func WithDefaultLocale(locale string) Option {
	return func(c *Cache) {
		if locale != "" {
			c.defaultLocale = locale
		}
	}
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		offerings:     make(map[string]OfferingEntry),
		procedures:    make(map[string]ProcedureEntry),
		features:      make(map[string]FeatureEntry),
		phenomena:     make(map[string]PhenomenonEntry),
		defaultLocale: DefaultLocale,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultLocale reports the fallback locale of name lookups.
func (c *Cache) DefaultLocale() string { return c.defaultLocale }

func (c *Cache) stamp(l *facetLock) {
	l.updated = c.now().UTC()
}

// ReplaceOfferings swaps the whole offerings facet.
func (c *Cache) ReplaceOfferings(entries []OfferingEntry) {
	next := make(map[string]OfferingEntry, len(entries))
	for _, e := range entries {
		next[e.ID] = cloneOffering(e)
	}
	c.offeringsLock.mu.Lock()
	c.offerings = next
	c.stamp(&c.offeringsLock)
	c.offeringsLock.mu.Unlock()
}

// PutOffering inserts or replaces a single offering entry.
func (c *Cache) PutOffering(entry OfferingEntry) {
	entry = cloneOffering(entry)
	c.offeringsLock.mu.Lock()
	c.offerings[entry.ID] = entry
	c.stamp(&c.offeringsLock)
	c.offeringsLock.mu.Unlock()
}

// RemoveOffering drops a single offering entry; it is a no-op when absent.
func (c *Cache) RemoveOffering(id string) {
	c.offeringsLock.mu.Lock()
	if _, ok := c.offerings[id]; ok {
		delete(c.offerings, id)
		c.stamp(&c.offeringsLock)
	}
	c.offeringsLock.mu.Unlock()
}

// ReplaceProcedures swaps the whole procedures facet.
func (c *Cache) ReplaceProcedures(entries []ProcedureEntry) {
	next := make(map[string]ProcedureEntry, len(entries))
	for _, e := range entries {
		e.Parents = cloneStrings(e.Parents)
		next[e.ID] = e
	}
	c.proceduresLock.mu.Lock()
	c.procedures = next
	c.stamp(&c.proceduresLock)
	c.proceduresLock.mu.Unlock()
}

// ReplaceFeatures swaps the whole features facet.
func (c *Cache) ReplaceFeatures(entries []FeatureEntry) {
	next := make(map[string]FeatureEntry, len(entries))
	for _, e := range entries {
		e.Parents = cloneStrings(e.Parents)
		next[e.ID] = e
	}
	c.featuresLock.mu.Lock()
	c.features = next
	c.stamp(&c.featuresLock)
	c.featuresLock.mu.Unlock()
}

// ReplacePhenomena swaps the whole phenomena facet.
func (c *Cache) ReplacePhenomena(entries []PhenomenonEntry) {
	next := make(map[string]PhenomenonEntry, len(entries))
	for _, e := range entries {
		e.Procedures = cloneStrings(e.Procedures)
		e.Offerings = cloneStrings(e.Offerings)
		next[e.ID] = e
	}
	c.phenomenaLock.mu.Lock()
	c.phenomena = next
	c.stamp(&c.phenomenaLock)
	c.phenomenaLock.mu.Unlock()
}

// SetGlobal replaces the global summary.
func (c *Cache) SetGlobal(entry GlobalEntry) {
	entry = cloneGlobal(entry)
	c.globalLock.mu.Lock()
	c.global = entry
	c.stamp(&c.globalLock)
	c.globalLock.mu.Unlock()
}

// Offering returns a copy of the entry for id.
func (c *Cache) Offering(id string) (OfferingEntry, bool) {
	c.offeringsLock.mu.RLock()
	defer c.offeringsLock.mu.RUnlock()
	e, ok := c.offerings[id]
	if !ok {
		return OfferingEntry{}, false
	}
	return cloneOffering(e), true
}

// OfferingIDs returns the cached offering ids in sorted order.
func (c *Cache) OfferingIDs() []string {
	c.offeringsLock.mu.RLock()
	out := make([]string, 0, len(c.offerings))
	for id := range c.offerings {
		out = append(out, id)
	}
	c.offeringsLock.mu.RUnlock()
	sort.Strings(out)
	return out
}

// OfferingName returns the name of offering id in locale. It falls back to
// the default locale and then to the untranslated name; an empty locale asks
// for the default locale.
func (c *Cache) OfferingName(id, locale string) (string, bool) {
	c.offeringsLock.mu.RLock()
	defer c.offeringsLock.mu.RUnlock()
	e, ok := c.offerings[id]
	if !ok {
		return "", false
	}
	if locale != "" {
		if name, ok := e.Names[locale]; ok {
			return name, true
		}
	}
	if name, ok := e.Names[c.defaultLocale]; ok {
		return name, true
	}
	return e.Name, true
}

// Procedure returns a copy of the entry for id.
func (c *Cache) Procedure(id string) (ProcedureEntry, bool) {
	c.proceduresLock.mu.RLock()
	defer c.proceduresLock.mu.RUnlock()
	e, ok := c.procedures[id]
	e.Parents = cloneStrings(e.Parents)
	return e, ok
}

// ProcedureFormats maps procedure ids to their description format.
func (c *Cache) ProcedureFormats() map[string]string {
	c.proceduresLock.mu.RLock()
	defer c.proceduresLock.mu.RUnlock()
	out := make(map[string]string, len(c.procedures))
	for id, e := range c.procedures {
		if e.Format != "" {
			out[id] = e.Format
		}
	}
	return out
}

// Feature returns a copy of the entry for id.
func (c *Cache) Feature(id string) (FeatureEntry, bool) {
	c.featuresLock.mu.RLock()
	defer c.featuresLock.mu.RUnlock()
	e, ok := c.features[id]
	e.Parents = cloneStrings(e.Parents)
	return e, ok
}

// Phenomenon returns a copy of the entry for id.
func (c *Cache) Phenomenon(id string) (PhenomenonEntry, bool) {
	c.phenomenaLock.mu.RLock()
	defer c.phenomenaLock.mu.RUnlock()
	e, ok := c.phenomena[id]
	e.Procedures = cloneStrings(e.Procedures)
	e.Offerings = cloneStrings(e.Offerings)
	return e, ok
}

// Global returns a copy of the global summary.
func (c *Cache) Global() GlobalEntry {
	c.globalLock.mu.RLock()
	defer c.globalLock.mu.RUnlock()
	return cloneGlobal(c.global)
}

// LastUpdated reports when facet was last written; zero if never.
func (c *Cache) LastUpdated(f Facet) time.Time {
	l := c.lockFor(f)
	if l == nil {
		return time.Time{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updated
}

func (c *Cache) lockFor(f Facet) *facetLock {
	switch f {
	case FacetOfferings:
		return &c.offeringsLock
	case FacetProcedures:
		return &c.proceduresLock
	case FacetFeatures:
		return &c.featuresLock
	case FacetPhenomena:
		return &c.phenomenaLock
	case FacetGlobal:
		return &c.globalLock
	}
	return nil
}

func cloneOffering(e OfferingEntry) OfferingEntry {
	e.Names = maps.Clone(e.Names)
	e.Procedures = cloneStrings(e.Procedures)
	e.Phenomena = cloneStrings(e.Phenomena)
	e.Features = cloneStrings(e.Features)
	if e.Envelope != nil {
		env := *e.Envelope
		e.Envelope = &env
	}
	e.PhenomenonTime = clonePeriod(e.PhenomenonTime)
	e.ResultTime = clonePeriod(e.ResultTime)
	return e
}

func cloneGlobal(e GlobalEntry) GlobalEntry {
	if e.Envelope != nil {
		env := *e.Envelope
		e.Envelope = &env
	}
	e.PhenomenonTime = clonePeriod(e.PhenomenonTime)
	e.ResultTime = clonePeriod(e.ResultTime)
	return e
}

func clonePeriod(p *domain.TimePeriod) *domain.TimePeriod {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
