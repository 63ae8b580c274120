package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/duyhunghd6/movierec/internal/logging"
	"github.com/duyhunghd6/movierec/internal/types"
)

const (
	MoviesFile   = "Movies.csv"
	KeywordsFile = "Keywords.csv"
)

// LoadDir reads Movies.csv and, when present, Keywords.csv from dir.
func LoadDir(dir string) (*Catalog, error) {
	mf, err := os.Open(filepath.Join(dir, MoviesFile))
	if err != nil {
		return nil, fmt.Errorf("open movies: %w", err)
	}
	defer mf.Close()

	var kr io.Reader
	kf, err := os.Open(filepath.Join(dir, KeywordsFile))
	switch {
	case err == nil:
		defer kf.Close()
		kr = kf
	case errors.Is(err, os.ErrNotExist):
		logging.Warn().Str("dir", dir).Msg("no keywords file, keyword texts will be empty")
	default:
		return nil, fmt.Errorf("open keywords: %w", err)
	}

	return Load(mf, kr)
}

// Load parses a movies CSV and an optional keywords CSV. Rows with an
// unparsable id are skipped; malformed genre or keyword lists load as empty.
func Load(movies io.Reader, keywords io.Reader) (*Catalog, error) {
	var kw map[int][]string
	if keywords != nil {
		var err error
		kw, err = readKeywords(keywords)
		if err != nil {
			return nil, fmt.Errorf("read keywords: %w", err)
		}
	}

	r := newReader(movies)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read movies header: %w", err)
	}
	cols := columnIndex(header)
	idCol, ok := cols["id"]
	if !ok {
		return nil, fmt.Errorf("movies header has no id column")
	}
	genreCol := lookupColumn(cols, "genres_parsed", "genres")

	var (
		list      []types.Movie
		skipped   int
		badGenres int
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read movies: %w", err)
		}

		id, err := strconv.Atoi(strings.TrimSpace(field(rec, idCol)))
		if err != nil {
			skipped++
			continue
		}

		m := types.Movie{
			ID:          id,
			Title:       field(rec, lookupColumn(cols, "title")),
			ReleaseDate: strings.TrimSpace(field(rec, lookupColumn(cols, "release_date"))),
			Overview:    field(rec, lookupColumn(cols, "overview")),
			Keywords:    kw[id],
		}
		if y, ok := ParseYear(m.ReleaseDate); ok {
			m.Year = &y
		}
		genres, ok := ParseNames(field(rec, genreCol))
		if !ok {
			badGenres++
		}
		m.Genres = genres

		list = append(list, m)
	}

	if skipped > 0 || badGenres > 0 {
		logging.Warn().Int("skipped_rows", skipped).Int("malformed_genres", badGenres).Msg("catalog data gaps")
	}
	return New(list), nil
}

func readKeywords(in io.Reader) (map[int][]string, error) {
	r := newReader(in)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := columnIndex(header)
	idCol := lookupColumn(cols, "id", "movieid")
	kwCol := lookupColumn(cols, "keywords")
	if idCol < 0 || kwCol < 0 {
		return nil, fmt.Errorf("keywords header needs id and keywords columns")
	}

	out := make(map[int][]string)
	malformed := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		id, err := strconv.Atoi(strings.TrimSpace(field(rec, idCol)))
		if err != nil {
			continue
		}
		names, ok := ParseNames(field(rec, kwCol))
		if !ok {
			malformed++
			continue
		}
		if _, seen := out[id]; !seen {
			out[id] = names
		}
	}
	if malformed > 0 {
		logging.Warn().Int("malformed_keywords", malformed).Msg("keyword lists treated as empty")
	}
	return out, nil
}

func newReader(in io.Reader) *csv.Reader {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false
	return r
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

// lookupColumn returns the index of the first present name, or -1.
func lookupColumn(cols map[string]int, names ...string) int {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
