package catalog

import (
	"sort"
	"strconv"

	"github.com/sahilm/fuzzy"
)

// Search returns catalog objects matching query, best match first.
//
// Queries shorter than the minimum length return nothing; this is a cost
// guard against fuzzy-scanning the whole catalog for one or two characters.
// A query that parses as a catalog number with an exact hit returns that
// object alone and bypasses the classification filter: an exact ID always
// wins. All other queries fuzzy-match against the display names of objects
// whose classification is in allowed, sorted by score descending with ties
// broken by catalog number descending, truncated to the result limit.
func (c *Catalog) Search(query string, allowed []ObjectType) []*Satellite {
	if len(query) < c.cfg.MinQueryLength {
		return nil
	}

	snap := c.snap.Load()
	if snap == nil {
		return nil
	}

	if id, err := strconv.Atoi(query); err == nil {
		if sat, ok := snap.objects[id]; ok {
			return []*Satellite{sat}
		}
	}

	candidates := make([]*Satellite, 0, len(snap.objects))
	for _, sat := range snap.objects {
		if typeAllowed(sat.Type, allowed) {
			candidates = append(candidates, sat)
		}
	}

	scored := scoreNames(query, candidates)

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		// Catalog numbers are assigned in launch order, so on equal
		// scores the higher number surfaces the more recent object.
		return scored[i].sat.NoradID > scored[j].sat.NoradID
	})

	if len(scored) > c.cfg.ResultLimit {
		scored = scored[:c.cfg.ResultLimit]
	}

	results := make([]*Satellite, len(scored))
	for i, m := range scored {
		results[i] = m.sat
	}
	return results
}

type scoredSatellite struct {
	score int
	sat   *Satellite
}

// nameSource adapts a candidate slice for the fuzzy matcher.
type nameSource []*Satellite

func (s nameSource) String(i int) string { return s[i].Name }
func (s nameSource) Len() int            { return len(s) }

// scoreNames fuzzy-matches query against the candidates' display names.
// Names the query does not match at all, and matches with a negative
// score, are dropped.
func scoreNames(query string, candidates []*Satellite) []scoredSatellite {
	matches := fuzzy.FindFrom(query, nameSource(candidates))

	scored := make([]scoredSatellite, 0, len(matches))
	for _, m := range matches {
		if m.Score < 0 {
			continue
		}
		scored = append(scored, scoredSatellite{score: m.Score, sat: candidates[m.Index]})
	}
	return scored
}

func typeAllowed(t ObjectType, allowed []ObjectType) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}
