package story

import (
	"math"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/storyline/models"
)

// mentionWeight controls how quickly raw mention volume saturates the
// confidence score: 20 total mentions max out the volume term.
const mentionWeight = 20.0

type subAgg struct {
	name             string
	count            int
	headlineArticles map[string]struct{}
}

type countryBucket struct {
	code             string
	name             string
	countryMentions  int
	subs             map[string]*subAgg
	subOrder         []string
	articles         map[string]struct{}
	headlineArticles map[string]struct{}
}

// aggregateLocations rolls the members' location rows up into scored
// country-level story locations. Both row shapes (nested country objects and
// flat type-tagged rows) are already normalized into models.LocationRow, so
// this only dispatches on the variant tag.
func aggregateLocations(members []models.Article, p Params) []models.StoryLocation {
	buckets := make(map[string]*countryBucket)
	var order []string
	bucket := func(code, name string) *countryBucket {
		b, ok := buckets[code]
		if !ok {
			b = &countryBucket{
				code:             code,
				name:             name,
				subs:             make(map[string]*subAgg),
				articles:         make(map[string]struct{}),
				headlineArticles: make(map[string]struct{}),
			}
			buckets[code] = b
			order = append(order, code)
		}
		if b.name == "" {
			b.name = name
		}
		return b
	}

	for _, art := range members {
		headline := strings.ToLower(art.Headline)
		for _, row := range art.Locations {
			switch row.Kind {
			case models.LocationRowCountry:
				b := bucket(row.CountryCode, row.Name)
				b.countryMentions += row.Count
				if row.Count > 0 {
					b.articles[art.ID] = struct{}{}
				}
				if inHeadline(row.Name, row.InHeadline, headline) {
					b.headlineArticles[art.ID] = struct{}{}
				}
				for _, sub := range row.SubEntities {
					addSub(b, art.ID, sub.Name, sub.Count, inHeadline(sub.Name, sub.InHeadline, headline))
				}
			case models.LocationRowFlat:
				b := bucket(row.CountryCode, countryNameForFlat(row))
				hit := inHeadline(row.Name, row.InHeadline, headline)
				if row.Type == models.LocationTypeCountry {
					b.countryMentions += row.Count
					if row.Count > 0 {
						b.articles[art.ID] = struct{}{}
					}
					if hit {
						b.headlineArticles[art.ID] = struct{}{}
					}
					continue
				}
				addSub(b, art.ID, row.Name, row.Count, hit)
			}
		}
	}

	n := len(members)
	var out []models.StoryLocation
	for _, code := range order {
		b := buckets[code]
		total := b.countryMentions
		for _, sub := range b.subs {
			total += sub.count
		}
		if total == 0 {
			continue
		}

		volume := math.Min(1, float64(total)/mentionWeight)
		spread := float64(len(b.articles)) / float64(n)
		headline := float64(len(b.headlineArticles)) / float64(n)
		confidence := volume*0.6 + spread*0.2 + headline*0.2
		if confidence < p.LocationMinConfidence {
			continue
		}

		out = append(out, models.StoryLocation{
			Name:            b.name,
			CountryCode:     b.code,
			Confidence:      round2(confidence),
			MentionCount:    total,
			InHeadlineRatio: round2(headline),
			SubEntities:     topSubEntities(b, p.MaxRegions+p.MaxCities, n),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].CountryCode < out[j].CountryCode
	})
	if p.MaxLocations > 0 && len(out) > p.MaxLocations {
		out = out[:p.MaxLocations]
	}
	return out
}

func addSub(b *countryBucket, articleID, name string, count int, headlineHit bool) {
	sub, ok := b.subs[name]
	if !ok {
		sub = &subAgg{name: name, headlineArticles: make(map[string]struct{})}
		b.subs[name] = sub
		b.subOrder = append(b.subOrder, name)
	}
	sub.count += count
	if count > 0 {
		b.articles[articleID] = struct{}{}
	}
	if headlineHit {
		sub.headlineArticles[articleID] = struct{}{}
		b.headlineArticles[articleID] = struct{}{}
	}
}

// inHeadline honours the upstream annotation flag and falls back to a
// literal lower-cased substring check against the headline.
func inHeadline(name string, flagged bool, lowerHeadline string) bool {
	if flagged {
		return true
	}
	if name == "" || lowerHeadline == "" {
		return false
	}
	return strings.Contains(lowerHeadline, strings.ToLower(name))
}

// countryNameForFlat names the bucket a flat row lands in. Country rows name
// it directly; sub-entity rows leave naming to a later country row.
func countryNameForFlat(row models.LocationRow) string {
	if row.Type == models.LocationTypeCountry {
		return row.Name
	}
	return ""
}

// topSubEntities keeps the highest-count sub-entities, ties broken by name,
// each reporting its own headline ratio over the member count.
func topSubEntities(b *countryBucket, limit, members int) []models.StorySubEntity {
	subs := make([]*subAgg, 0, len(b.subOrder))
	for _, name := range b.subOrder {
		subs = append(subs, b.subs[name])
	}
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].count != subs[j].count {
			return subs[i].count > subs[j].count
		}
		return subs[i].name < subs[j].name
	})
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	out := make([]models.StorySubEntity, 0, len(subs))
	for _, sub := range subs {
		out = append(out, models.StorySubEntity{
			Name:            sub.name,
			MentionCount:    sub.count,
			InHeadlineRatio: round2(float64(len(sub.headlineArticles)) / float64(members)),
		})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
