package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/duyhunghd6/movierec/internal/catalog"
	"github.com/duyhunghd6/movierec/internal/config"
	"github.com/duyhunghd6/movierec/internal/logging"
	"github.com/duyhunghd6/movierec/internal/orchestrator"
	"github.com/duyhunghd6/movierec/internal/types"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	// Load global config from ~/.movierec/config.yaml first
	if _, err := config.Load(); err != nil {
		logging.Warn().Err(err).Msg("config load")
	}
	// Then load local .env (overrides YAML since env vars take precedence)
	_ = godotenv.Load()

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		logging.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// buildRootCmd creates the root cobra command with all subcommands.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "movierec",
		Short: "🎬 movierec: hybrid movie recommender",
		Long: `movierec recommends movies by blending content-embedding similarity
with genre overlap, using each user's ratings history as a taste profile.
Build the vector index once with "movierec index", then ask for
recommendations, search the catalog, or add ratings.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Shared flags
	var (
		dataDir        string
		vectorDSN      string
		ratingsDSN     string
		embeddingModel string
		embedder       string
		logLevel       string
	)

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory with Movies.csv, Keywords.csv, Ratings.csv (default: data/processed)")
	rootCmd.PersistentFlags().StringVar(&vectorDSN, "vector-dsn", "", "Vector store: file path (SQLite), *.gob, memory, or postgres:// URL")
	rootCmd.PersistentFlags().StringVar(&ratingsDSN, "ratings-dsn", "", "Ratings store: file path (SQLite) or memory")
	rootCmd.PersistentFlags().StringVar(&embeddingModel, "embedding-model", "", "Embedding model name (default: from config)")
	rootCmd.PersistentFlags().StringVar(&embedder, "embedder", "", "Embedder: api or hash (default: api when an API key is set)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		lc := logging.DefaultConfig()
		lc.Level = firstNonEmpty(logLevel, os.Getenv(config.EnvLogLevel), lc.Level)
		lc.Format = firstNonEmpty(os.Getenv(config.EnvLogFormat), lc.Format)
		logging.Init(lc)
	}

	buildConfig := func() orchestrator.Config {
		cfg := orchestrator.DefaultConfig()
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if vectorDSN != "" {
			cfg.VectorDSN = vectorDSN
		}
		if ratingsDSN != "" {
			cfg.RatingsDSN = ratingsDSN
		}
		if embeddingModel != "" {
			cfg.EmbeddingModel = embeddingModel
		}
		if embedder != "" {
			cfg.Embedder = strings.ToLower(embedder)
		}
		return cfg
	}

	openEngine := func(cmd *cobra.Command) (*orchestrator.Engine, error) {
		return orchestrator.NewEngine(cmd.Context(), buildConfig())
	}

	// --- index command ---
	var forceReindex bool
	var indexJSON bool

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index",
		Long:  "Embed the overview and keywords of every catalog movie and replace the vector collection.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			out := cmd.OutOrStdout()
			if !indexJSON {
				fmt.Fprintf(out, "⚡ Indexing %d movies...\n", engine.Catalog().Len())
			}
			start := time.Now()

			result, err := engine.Index(cmd.Context(), forceReindex)
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}

			if indexJSON {
				return writeJSONTo(out, result)
			}

			fmt.Fprintf(out, "\n✅ Indexed in %s\n", time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(out, "   Movies:    %d\n", result.Movies)
			fmt.Fprintf(out, "   Records:   %d\n", result.Records)
			if result.Dimension > 0 {
				fmt.Fprintf(out, "   Dimension: %d\n", result.Dimension)
			}
			if result.Model != "" {
				fmt.Fprintf(out, "   Model:     %s\n", result.Model)
			}
			if result.Skipped {
				fmt.Fprintln(out, "   Source:    existing index (use --force to rebuild)")
			}
			return nil
		},
	}
	indexCmd.Flags().BoolVar(&forceReindex, "force", false, "Rebuild even if the index exists")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(indexCmd)

	// --- recommend command ---
	var recUser, recTop int
	var recJSON bool

	recommendCmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend movies for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if recUser <= 0 {
				return fmt.Errorf("--user is required")
			}
			engine, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			recs, err := engine.Recommend(cmd.Context(), recUser, recTop)
			if err != nil {
				return err
			}
			if recJSON {
				return writeJSONTo(cmd.OutOrStdout(), recs)
			}
			if len(recs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No recommendations for user %d (no liked, indexed movies yet).\n", recUser)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🎬 Recommendations for user %d\n\n", recUser)
			printScored(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	recommendCmd.Flags().IntVar(&recUser, "user", 0, "User id")
	recommendCmd.Flags().IntVar(&recTop, "top", orchestrator.FeedSize, "Number of recommendations")
	recommendCmd.Flags().BoolVar(&recJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(recommendCmd)

	// --- search command ---
	var searchQuery, searchGenre, searchYear string
	var searchLimit int
	var searchJSON bool

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search the catalog by title, genre, and year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := catalog.Filter{Query: searchQuery, Genre: searchGenre, Limit: searchLimit}
			if y, ok := parseYearFlag(searchYear); ok {
				f.Year = &y
			}

			engine, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			movies := engine.Search(f)
			if searchJSON {
				return writeJSONTo(cmd.OutOrStdout(), movies)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🔍 %d movies\n\n", len(movies))
			printMovies(cmd.OutOrStdout(), movies)
			return nil
		},
	}
	searchCmd.Flags().StringVar(&searchQuery, "query", "", "Title substring (case-insensitive)")
	searchCmd.Flags().StringVar(&searchGenre, "genre", "", "Genre substring (case-insensitive)")
	searchCmd.Flags().StringVar(&searchYear, "year", "", "Exact release year")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (0 = all)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(searchCmd)

	// --- rate command ---
	var rateUser, rateMovie int
	var rateValue float64
	var rateJSON bool

	rateCmd := &cobra.Command{
		Use:   "rate",
		Short: "Rate a movie and show refreshed recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rateUser <= 0 || rateMovie <= 0 {
				return fmt.Errorf("--user and --movie are required")
			}
			engine, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			res, err := engine.Rate(cmd.Context(), rateUser, rateMovie, rateValue)
			if err != nil {
				return err
			}
			if rateJSON {
				return writeJSONTo(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "⭐ User %d rated movie %d: %.1f\n\n", rateUser, rateMovie, rateValue)
			printScored(out, res.Recommendations)
			return nil
		},
	}
	rateCmd.Flags().IntVar(&rateUser, "user", 0, "User id")
	rateCmd.Flags().IntVar(&rateMovie, "movie", 0, "Movie id")
	rateCmd.Flags().Float64Var(&rateValue, "rating", 0, "Rating from 0.5 to 5.0")
	rateCmd.Flags().BoolVar(&rateJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(rateCmd)

	// --- home command ---
	var homeUser int
	var homeQuery, homeGenre, homeYear string
	var homeJSON bool

	homeCmd := &cobra.Command{
		Use:   "home",
		Short: "Show the home feed: recommendations and genre rails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := catalog.Filter{Query: homeQuery, Genre: homeGenre}
			if y, ok := parseYearFlag(homeYear); ok {
				f.Year = &y
			}

			engine, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			feed, err := engine.Home(cmd.Context(), homeUser, f)
			if err != nil {
				return err
			}
			if homeJSON {
				return writeJSONTo(cmd.OutOrStdout(), feed)
			}
			printHome(cmd.OutOrStdout(), feed, f != (catalog.Filter{}))
			return nil
		},
	}
	homeCmd.Flags().IntVar(&homeUser, "user", 0, "User id (0 = anonymous)")
	homeCmd.Flags().StringVar(&homeQuery, "query", "", "Title substring for the search section")
	homeCmd.Flags().StringVar(&homeGenre, "genre", "", "Genre substring for the search section")
	homeCmd.Flags().StringVar(&homeYear, "year", "", "Release year for the search section")
	homeCmd.Flags().BoolVar(&homeJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(homeCmd)

	// --- show command ---
	var showUser int
	var showJSON bool

	showCmd := &cobra.Command{
		Use:   "show <movie-id>",
		Short: "Show movie details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid movie id %q", args[0])
			}
			engine, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			d, err := engine.Show(cmd.Context(), id, showUser)
			if err != nil {
				return err
			}
			if showJSON {
				return writeJSONTo(cmd.OutOrStdout(), d)
			}
			printDetail(cmd.OutOrStdout(), d)
			return nil
		},
	}
	showCmd.Flags().IntVar(&showUser, "user", 0, "Show this user's rating too")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(showCmd)

	// --- facet commands ---
	genresCmd := &cobra.Command{
		Use:   "genres",
		Short: "List all genres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()
			for _, g := range engine.Genres() {
				fmt.Fprintln(cmd.OutOrStdout(), g)
			}
			return nil
		},
	}
	rootCmd.AddCommand(genresCmd)

	yearsCmd := &cobra.Command{
		Use:   "years",
		Short: "List all release years, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()
			for _, y := range engine.Years() {
				fmt.Fprintln(cmd.OutOrStdout(), y)
			}
			return nil
		},
	}
	rootCmd.AddCommand(yearsCmd)

	// --- serve-mcp command ---
	serveMCPCmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Start MCP (Model Context Protocol) server",
		Long:  "Start an HTTP server exposing recommendation and search as MCP tools.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetInt("port")
			engine, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()
			return serveMCP(engine, port)
		},
	}
	serveMCPCmd.Flags().Int("port", 9999, "Port to listen on")
	rootCmd.AddCommand(serveMCPCmd)

	// --- completion command ---
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for movierec.

To load completions:

Bash:
  $ source <(movierec completion bash)

Zsh:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc  # once
  $ movierec completion zsh > "${fpath[1]}/_movierec"
  $ exec zsh

Fish:
  $ movierec completion fish | source
  $ movierec completion fish > ~/.config/fish/completions/movierec.fish

PowerShell:
  PS> movierec completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	rootCmd.AddCommand(completionCmd)

	return rootCmd
}

// parseYearFlag accepts only all-digit years; anything else means no filter.
func parseYearFlag(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	y, err := strconv.Atoi(s)
	return y, err == nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yearLabel(m types.Movie) string {
	if m.Year == nil {
		return "----"
	}
	return strconv.Itoa(*m.Year)
}

func printMovies(w io.Writer, movies []types.Movie) {
	for _, m := range movies {
		fmt.Fprintf(w, "  %6d  %s  %s", m.ID, yearLabel(m), m.Title)
		if len(m.Genres) > 0 {
			fmt.Fprintf(w, "  [%s]", strings.Join(m.Genres, ", "))
		}
		fmt.Fprintln(w)
	}
}

func printScored(w io.Writer, recs []types.ScoredMovie) {
	for i, r := range recs {
		fmt.Fprintf(w, "%3d. %-40s %s  score=%.3f (vector %.3f, genre %.3f)\n",
			i+1, r.Title, yearLabel(r.Movie), r.Score, r.VectorSimilarity, r.GenreSimilarity)
	}
}

func printHome(w io.Writer, feed *types.HomeFeed, showResults bool) {
	if feed.Personalized {
		fmt.Fprintf(w, "🎬 Recommended for user %d\n", feed.UserID)
		printScored(w, feed.Recommended)
	} else {
		fmt.Fprintln(w, "🎬 Latest movies")
		movies := make([]types.Movie, len(feed.Recommended))
		for i, r := range feed.Recommended {
			movies[i] = r.Movie
		}
		printMovies(w, movies)
	}
	for _, g := range feed.RailGenres {
		fmt.Fprintf(w, "\n%s\n", g)
		printMovies(w, feed.Rails[g])
	}
	if showResults {
		fmt.Fprintf(w, "\n🔍 Search results (%d)\n", len(feed.Results))
		printMovies(w, feed.Results)
	}
}

func printDetail(w io.Writer, d *types.MovieDetail) {
	fmt.Fprintf(w, "%s (%s)\n", d.Title, yearLabel(d.Movie))
	if d.ReleaseDate != "" {
		fmt.Fprintf(w, "Released: %s\n", d.ReleaseDate)
	}
	fmt.Fprintf(w, "Genres:   %s\n", joinOrNA(d.Genres))
	fmt.Fprintf(w, "Keywords: %s\n", joinOrNA(d.Keywords))
	if d.AverageRating != nil {
		fmt.Fprintf(w, "Rating:   %.1f (%d ratings)\n", *d.AverageRating, d.RatingCount)
	} else {
		fmt.Fprintln(w, "Rating:   not rated yet")
	}
	if d.UserRating != nil {
		fmt.Fprintf(w, "Yours:    %.1f\n", *d.UserRating)
	}
	if d.Overview != "" {
		fmt.Fprintf(w, "\n%s\n", d.Overview)
	}
}

func joinOrNA(names []string) string {
	if len(names) == 0 {
		return "N/A"
	}
	return strings.Join(names, ", ")
}
