package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/duyhunghd6/movierec/internal/catalog"
	"github.com/duyhunghd6/movierec/internal/logging"
	"github.com/duyhunghd6/movierec/internal/orchestrator"
	"github.com/duyhunghd6/movierec/internal/ratings"
	"github.com/duyhunghd6/movierec/internal/recommend"
)

// serveMCP starts an HTTP server implementing the Model Context Protocol tool surface.
func serveMCP(engine *orchestrator.Engine, port int) error {
	mux := buildMCPMux(engine)

	addr := fmt.Sprintf(":%d", port)
	log := logging.With("mcp")
	log.Info().Str("addr", "http://localhost"+addr).Msg("🚀 movierec MCP server listening")
	log.Info().Str("endpoint", "http://localhost"+addr+"/mcp/").Msg("MCP endpoint")
	return http.ListenAndServe(addr, mux)
}

// buildMCPMux creates the HTTP handler mux with all MCP endpoints.
func buildMCPMux(engine *orchestrator.Engine) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/mcp/initialize", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]string{
				"name":    "movierec",
				"version": version,
			},
			"capabilities": map[string]any{
				"tools": map[string]bool{
					"listChanged": false,
				},
			},
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/mcp/tools/list", func(w http.ResponseWriter, r *http.Request) {
		tools := []map[string]any{
			{
				"name":        "index_movies",
				"description": "Embed the movie catalog into the vector index",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"force": map[string]string{"type": "boolean", "description": "Rebuild even if the index exists"},
					},
				},
			},
			{
				"name":        "recommend_movies",
				"description": "Recommend movies for a user from their ratings",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"user_id": map[string]string{"type": "integer", "description": "User id"},
						"top_n":   map[string]string{"type": "integer", "description": "Number of results (default: 20)"},
					},
					"required": []string{"user_id"},
				},
			},
			{
				"name":        "search_movies",
				"description": "Search the catalog by title, genre, and release year",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]string{"type": "string", "description": "Title substring"},
						"genre": map[string]string{"type": "string", "description": "Genre substring"},
						"year":  map[string]string{"type": "integer", "description": "Exact release year"},
						"limit": map[string]string{"type": "integer", "description": "Maximum results"},
					},
				},
			},
			{
				"name":        "rate_movie",
				"description": "Record a rating and return refreshed recommendations",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"user_id":  map[string]string{"type": "integer", "description": "User id"},
						"movie_id": map[string]string{"type": "integer", "description": "Movie id"},
						"rating":   map[string]string{"type": "number", "description": "Rating from 0.5 to 5.0"},
					},
					"required": []string{"user_id", "movie_id", "rating"},
				},
			},
			{
				"name":        "movie_detail",
				"description": "Show a movie with its average rating",
				"inputSchema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"movie_id": map[string]string{"type": "integer", "description": "Movie id"},
						"user_id":  map[string]string{"type": "integer", "description": "Include this user's rating"},
					},
					"required": []string{"movie_id"},
				},
			},
		}
		writeJSON(w, map[string]any{"tools": tools})
	})

	mux.HandleFunc("/mcp/tools/call", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string         `json:"name"`
			Params map[string]any `json:"arguments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "Invalid request body", 400)
			return
		}
		ctx := r.Context()

		switch req.Name {
		case "index_movies":
			force, _ := req.Params["force"].(bool)
			result, err := engine.Index(ctx, force)
			if err != nil {
				writeError(w, err.Error(), 500)
				return
			}
			writeToolResult(w, result)

		case "recommend_movies":
			userID := intArg(req.Params, "user_id")
			if userID <= 0 {
				writeError(w, "user_id is required", 400)
				return
			}
			topN := intArg(req.Params, "top_n")
			if topN <= 0 {
				topN = orchestrator.FeedSize
			}
			recs, err := engine.Recommend(ctx, userID, topN)
			if err != nil {
				writeError(w, err.Error(), statusFor(err))
				return
			}
			writeToolResult(w, recs)

		case "search_movies":
			f := catalog.Filter{Limit: intArg(req.Params, "limit")}
			f.Query, _ = req.Params["query"].(string)
			f.Genre, _ = req.Params["genre"].(string)
			if y := intArg(req.Params, "year"); y > 0 {
				f.Year = &y
			}
			writeToolResult(w, engine.Search(f))

		case "rate_movie":
			userID := intArg(req.Params, "user_id")
			movieID := intArg(req.Params, "movie_id")
			value, ok := req.Params["rating"].(float64)
			if userID <= 0 || movieID <= 0 || !ok {
				writeError(w, "user_id, movie_id and rating are required", 400)
				return
			}
			result, err := engine.Rate(ctx, userID, movieID, value)
			if err != nil {
				writeError(w, err.Error(), statusFor(err))
				return
			}
			writeToolResult(w, result)

		case "movie_detail":
			movieID := intArg(req.Params, "movie_id")
			if movieID <= 0 {
				writeError(w, "movie_id is required", 400)
				return
			}
			d, err := engine.Show(ctx, movieID, intArg(req.Params, "user_id"))
			if err != nil {
				writeError(w, err.Error(), statusFor(err))
				return
			}
			writeToolResult(w, d)

		default:
			writeError(w, fmt.Sprintf("Unknown tool: %s", req.Name), 404)
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":  "ok",
			"version": version,
			"movies":  engine.Catalog().Len(),
		})
	})

	return mux
}

// intArg reads a JSON number argument; missing or non-numeric values give 0.
func intArg(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrMovieNotFound):
		return 404
	case errors.Is(err, ratings.ErrInvalidRating):
		return 400
	case errors.Is(err, recommend.ErrIndexNotBuilt):
		return 409
	}
	return 500
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": msg},
	})
}

func writeToolResult(w http.ResponseWriter, data any) {
	content, err := json.Marshal(data)
	if err != nil {
		writeError(w, fmt.Sprintf("encode result: %v", err), 500)
		return
	}
	writeJSON(w, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(content)},
		},
	})
}
