package resolver

import (
	"sort"
	"strings"

	"github.com/mohammad-safakhou/storyline/models"
)

// MergePersonMentions folds short person names into longer ones within the
// same article: when the shorter name occurs as a whole-word substring of
// the longer ("BIDEN" inside "JOE BIDEN"), the shorter mention is merged
// into the longer one, summing counts and unioning alias lists. Input order
// does not affect the result.
func MergePersonMentions(mentions []models.EntityMention) []models.EntityMention {
	grouped := groupByArticle(mentions)
	articleIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		articleIDs = append(articleIDs, id)
	}
	sort.Strings(articleIDs)

	var out []models.EntityMention
	for _, id := range articleIDs {
		out = append(out, mergeArticlePersons(grouped[id])...)
	}
	return out
}

func mergeArticlePersons(mentions []models.EntityMention) []models.EntityMention {
	if len(mentions) < 2 {
		return mentions
	}
	merged := make([]models.EntityMention, len(mentions))
	copy(merged, mentions)
	// Longest names first so a short mention always folds into the longest
	// mention that contains it.
	sort.SliceStable(merged, func(i, j int) bool {
		if len(merged[i].Name) != len(merged[j].Name) {
			return len(merged[i].Name) > len(merged[j].Name)
		}
		return merged[i].Name < merged[j].Name
	})

	kept := merged[:0]
	for _, m := range merged {
		folded := false
		for k := range kept {
			if containsWholeWord(kept[k].Name, m.Name) {
				kept[k].Count += m.Count
				kept[k].InTitle = kept[k].InTitle || m.InTitle
				kept[k].Aliases = unionAliases(kept[k].Aliases, m.Name, m.Aliases)
				folded = true
				break
			}
		}
		if !folded {
			kept = append(kept, m)
		}
	}
	return kept
}

// containsWholeWord reports whether short occurs in long bounded by word
// breaks on both sides. Equal names are not a merge.
func containsWholeWord(long, short string) bool {
	if short == "" || len(short) >= len(long) {
		return false
	}
	for start := 0; start+len(short) <= len(long); {
		idx := strings.Index(long[start:], short)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(short)
		leftOK := idx == 0 || long[idx-1] == ' '
		rightOK := end == len(long) || long[end] == ' '
		if leftOK && rightOK {
			return true
		}
		start = idx + 1
	}
	return false
}

func unionAliases(existing []string, name string, aliases []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(aliases)+1)
	for _, a := range existing {
		seen[a] = struct{}{}
	}
	out := existing
	add := func(a string) {
		if a == "" {
			return
		}
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	add(name)
	for _, a := range aliases {
		add(a)
	}
	return out
}
