package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/TilBlechschmidt/gpcache/internal/catalog"
	"github.com/TilBlechschmidt/gpcache/internal/perturbation"
)

// defaultSearchTypes are the classifications exposed through the search
// endpoint. Debris is excluded from public results; an exact catalog
// number still returns any object, debris included.
var defaultSearchTypes = []catalog.ObjectType{
	catalog.Payload,
	catalog.RocketBody,
	catalog.Unknown,
}

// currentHandler serves the current GP payload for one satellite through
// the perturbation cache.
func currentHandler(logger *slog.Logger, cache *perturbation.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noradID, err := strconv.Atoi(r.PathValue("norad_id"))
		if err != nil || noradID < 0 {
			http.Error(w, "invalid catalog number", http.StatusBadRequest)
			return
		}

		payload, err := cache.GetOrFetch(r.Context(), noradID)
		if err != nil {
			logger.Error("GP fetch failed", "norad_id", noradID, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}
}

// searchHandler answers catalog searches. Too-short queries and queries
// matching nothing return an empty array, not an error.
func searchHandler(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := cat.Search(r.URL.Query().Get("q"), defaultSearchTypes)
		if results == nil {
			results = []*catalog.Satellite{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(results)
	}
}
