package ratings

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/duyhunghd6/movierec/internal/logging"
	"github.com/duyhunghd6/movierec/internal/types"
)

// RatingsFile is the seed file name inside the data directory.
const RatingsFile = "Ratings.csv"

// Timestamps at or above this are nanoseconds; below, seconds.
const nanoThreshold = 1e12

// ReadCSV parses a ratings CSV with columns userId, movieId, rating and an
// optional timestamp. Rows that fail to parse or validate are skipped.
func ReadCSV(in io.Reader) ([]types.Rating, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	userCol, ok1 := cols["userid"]
	movieCol, ok2 := cols["movieid"]
	ratingCol, ok3 := cols["rating"]
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("ratings header must contain userId, movieId and rating, got %v", header)
	}
	tsCol, hasTS := cols["timestamp"]

	var (
		out     []types.Rating
		skipped int
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		rt, ok := parseRow(rec, userCol, movieCol, ratingCol, tsCol, hasTS)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rt)
	}
	if skipped > 0 {
		logging.Warn().Int("skipped", skipped).Msg("unparsable rating rows skipped")
	}
	return out, nil
}

func parseRow(rec []string, userCol, movieCol, ratingCol, tsCol int, hasTS bool) (types.Rating, bool) {
	get := func(i int) string {
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	userID, err := strconv.Atoi(get(userCol))
	if err != nil {
		return types.Rating{}, false
	}
	movieID, err := strconv.Atoi(get(movieCol))
	if err != nil {
		return types.Rating{}, false
	}
	value, err := strconv.ParseFloat(get(ratingCol), 64)
	if err != nil {
		return types.Rating{}, false
	}

	rt := types.Rating{UserID: userID, MovieID: movieID, Value: value}
	if hasTS {
		if ts, err := strconv.ParseInt(get(tsCol), 10, 64); err == nil {
			rt.Timestamp = parseTimestamp(ts)
		}
	}
	if Validate(rt) != nil {
		return types.Rating{}, false
	}
	return rt, true
}

func parseTimestamp(ts int64) time.Time {
	if ts >= nanoThreshold {
		return time.Unix(0, ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

type batchAppender interface {
	AppendBatch(ctx context.Context, rs []types.Rating) error
}

// Seed imports path into s when s is empty. A missing file is not an error.
// It returns the number of imported ratings.
func Seed(ctx context.Context, s Store, path string) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open ratings seed: %w", err)
	}
	defer f.Close()

	rs, err := ReadCSV(f)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	if b, ok := s.(batchAppender); ok {
		if err := b.AppendBatch(ctx, rs); err != nil {
			return 0, err
		}
	} else {
		for _, r := range rs {
			if err := s.Append(ctx, r); err != nil {
				return 0, err
			}
		}
	}

	log := logging.With("ratings")
	log.Info().Int("ratings", len(rs)).Str("file", path).Msg("seeded ratings store")
	return len(rs), nil
}
