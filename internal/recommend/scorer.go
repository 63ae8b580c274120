// Package recommend ranks unseen movies for a user by blending content-vector
// similarity to the user's taste profile with genre overlap.
package recommend

import "strings"

// Blend weights.
const (
	VectorWeight = 0.8
	GenreWeight  = 0.2
)

// GenreSimilarity is the Jaccard index of two genre sets. Names are compared
// case-insensitively and duplicates collapse. Either side empty gives 0.
func GenreSimilarity(a, b []string) float64 {
	sa, sb := genreSet(a), genreSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	inter := 0
	for g := range sa {
		if _, ok := sb[g]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// Blend combines the two similarities. The result is not clamped: vector
// similarity derived from cosine distance can be negative.
func Blend(vectorSim, genreSim float64) float64 {
	return VectorWeight*vectorSim + GenreWeight*genreSim
}

func genreSet(genres []string) map[string]struct{} {
	set := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			set[g] = struct{}{}
		}
	}
	return set
}
