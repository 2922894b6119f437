package resolver

import (
	"log"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/storyline/internal/runtime"
	"github.com/mohammad-safakhou/storyline/models"
)

// AliasTables is the reference-data snapshot the resolver works against.
// Keys are uppercase alias strings.
type AliasTables struct {
	Locations map[string][]models.LocationCandidate
	Persons   map[string][]models.PersonCandidate
}

// Resolver maps raw named-entity mentions to Wikidata identifiers using
// per-article context heuristics. It is a pure function over the supplied
// snapshot: no I/O, no retained state between calls.
type Resolver struct {
	logger  *log.Logger
	metrics *runtime.Metrics
}

// New builds a resolver. metrics may be nil.
func New(logger *log.Logger, metrics *runtime.Metrics) *Resolver {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESOLVER] ", log.LstdFlags)
	}
	return &Resolver{logger: logger, metrics: metrics}
}

// disambiguationStep is one filter in the location cascade. Steps run in
// order and the cascade stops at the first one that narrows to exactly one
// candidate.
type disambiguationStep int

const (
	stepContext disambiguationStep = iota
	stepCountryOnly
	stepTypePriority
)

var locationSteps = []disambiguationStep{stepContext, stepCountryOnly, stepTypePriority}

// Resolve maps GPE mentions to locations and PERSON mentions to persons,
// article by article. Aliases absent from the tables are dropped silently
// (counted, not raised): data quality is not validated here.
func (r *Resolver) Resolve(gpeMentions, personMentions []models.EntityMention, tables AliasTables) ([]models.ArticleLocation, []models.ArticlePerson) {
	gpeByArticle := groupByArticle(gpeMentions)
	personByArticle := groupByArticle(MergePersonMentions(personMentions))

	articleIDs := make(map[string]struct{}, len(gpeByArticle)+len(personByArticle))
	for id := range gpeByArticle {
		articleIDs[id] = struct{}{}
	}
	for id := range personByArticle {
		articleIDs[id] = struct{}{}
	}
	ordered := make([]string, 0, len(articleIDs))
	for id := range articleIDs {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	var locations []models.ArticleLocation
	var persons []models.ArticlePerson
	unresolvedLocations, unresolvedPersons := 0, 0
	for _, articleID := range ordered {
		locs, countryCodes, dropped := r.resolveArticleLocations(articleID, gpeByArticle[articleID], tables.Locations)
		locations = append(locations, locs...)
		unresolvedLocations += dropped

		pers, droppedPersons := r.resolveArticlePersons(articleID, personByArticle[articleID], countryCodes, tables.Persons)
		persons = append(persons, pers...)
		unresolvedPersons += droppedPersons
	}

	if unresolvedLocations > 0 || unresolvedPersons > 0 {
		r.logger.Printf("warn: dropped %d unresolved location aliases, %d unresolved person aliases", unresolvedLocations, unresolvedPersons)
	}
	if r.metrics != nil {
		r.metrics.AddUnresolvedAliases("location", unresolvedLocations)
		r.metrics.AddUnresolvedAliases("person", unresolvedPersons)
	}
	return locations, persons
}

// resolveArticleLocations resolves one article's GPE mentions. It returns
// the emitted rows, the country-code context derived from them (used for
// person resolution), and the count of aliases with no table entry.
func (r *Resolver) resolveArticleLocations(articleID string, mentions []models.EntityMention, table map[string][]models.LocationCandidate) ([]models.ArticleLocation, map[string]struct{}, int) {
	type lookup struct {
		mention    models.EntityMention
		candidates []models.LocationCandidate
	}

	dropped := 0
	lookups := make([]lookup, 0, len(mentions))
	for _, m := range mentions {
		candidates := table[strings.ToUpper(m.Name)]
		if len(candidates) == 0 {
			dropped++
			continue
		}
		lookups = append(lookups, lookup{mention: m, candidates: candidates})
	}

	// Context set from the unambiguous aliases: country codes always, plus
	// the uppercased name when the candidate is itself a country.
	context := make(map[string]struct{})
	for _, l := range lookups {
		if len(l.candidates) != 1 {
			continue
		}
		c := l.candidates[0]
		if c.CountryCode != "" {
			context[c.CountryCode] = struct{}{}
		}
		if c.Type == models.LocationTypeCountry {
			context[strings.ToUpper(c.Name)] = struct{}{}
		}
	}

	var out []models.ArticleLocation
	countryCodes := make(map[string]struct{})
	emit := func(c models.LocationCandidate) {
		out = append(out, models.ArticleLocation{ArticleID: articleID, WikidataQID: c.WikidataQID, Name: c.Name})
		if c.CountryCode != "" {
			countryCodes[c.CountryCode] = struct{}{}
		}
	}

	for _, l := range lookups {
		if len(l.candidates) == 1 {
			emit(l.candidates[0])
			continue
		}
		for _, c := range disambiguate(l.candidates, context) {
			emit(c)
		}
	}
	return out, countryCodes, dropped
}

// disambiguate runs the filter cascade over an ambiguous candidate set. A
// step that narrows to exactly one candidate ends the cascade; a step that
// filters everything out is skipped; otherwise the narrowed set feeds the
// next step. Whatever remains after the last step is returned as genuine
// ambiguity.
func disambiguate(candidates []models.LocationCandidate, context map[string]struct{}) []models.LocationCandidate {
	remaining := candidates
	for _, step := range locationSteps {
		filtered := applyStep(step, remaining, context)
		if len(filtered) == 1 {
			return filtered
		}
		if len(filtered) > 1 {
			remaining = filtered
		}
	}
	return remaining
}

func applyStep(step disambiguationStep, candidates []models.LocationCandidate, context map[string]struct{}) []models.LocationCandidate {
	switch step {
	case stepContext:
		var kept []models.LocationCandidate
		for _, c := range candidates {
			if _, ok := context[c.CountryCode]; ok {
				kept = append(kept, c)
				continue
			}
			if _, ok := context[strings.ToUpper(c.Name)]; ok {
				kept = append(kept, c)
			}
		}
		return kept
	case stepCountryOnly:
		var kept []models.LocationCandidate
		for _, c := range candidates {
			if c.Type == models.LocationTypeCountry {
				kept = append(kept, c)
			}
		}
		return kept
	case stepTypePriority:
		best := -1
		for _, c := range candidates {
			if p := c.Type.Priority(); best == -1 || p < best {
				best = p
			}
		}
		var kept []models.LocationCandidate
		for _, c := range candidates {
			if c.Type.Priority() == best {
				kept = append(kept, c)
			}
		}
		return kept
	}
	return candidates
}

// resolveArticlePersons resolves one article's PERSON mentions against the
// country-code context derived from its resolved locations.
func (r *Resolver) resolveArticlePersons(articleID string, mentions []models.EntityMention, countryCodes map[string]struct{}, table map[string][]models.PersonCandidate) ([]models.ArticlePerson, int) {
	dropped := 0
	var out []models.ArticlePerson
	for _, m := range mentions {
		candidates := table[strings.ToUpper(m.Name)]
		if len(candidates) == 0 {
			dropped++
			continue
		}
		if len(candidates) > 1 {
			var filtered []models.PersonCandidate
			for _, c := range candidates {
				if intersectsContext(c.Nationalities, countryCodes) {
					filtered = append(filtered, c)
				}
			}
			// Only narrow when the nationality signal actually matched;
			// otherwise the original ambiguity stands.
			if len(filtered) > 0 {
				candidates = filtered
			}
		}
		for _, c := range candidates {
			out = append(out, models.ArticlePerson{ArticleID: articleID, WikidataQID: c.WikidataQID, Name: c.Name})
		}
	}
	return out, dropped
}

func intersectsContext(nationalities []string, countryCodes map[string]struct{}) bool {
	for _, n := range nationalities {
		if _, ok := countryCodes[n]; ok {
			return true
		}
	}
	return false
}

func groupByArticle(mentions []models.EntityMention) map[string][]models.EntityMention {
	grouped := make(map[string][]models.EntityMention)
	for _, m := range mentions {
		grouped[m.ArticleID] = append(grouped[m.ArticleID], m)
	}
	return grouped
}
