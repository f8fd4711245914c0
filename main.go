// Package main provides the entry point for the readaloud CLI, which
// streams a document (file, URL, or stdin) as synthesized speech.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/readaloud/audio"
	"github.com/dgnsrekt/readaloud/feed"
	"github.com/dgnsrekt/readaloud/pipeline"
	"github.com/dgnsrekt/readaloud/segment"
	"github.com/dgnsrekt/readaloud/synth"
	"github.com/dgnsrekt/readaloud/synth/engines"
	"github.com/dgnsrekt/readaloud/synth/engines/elevenlabs"
	"github.com/dgnsrekt/readaloud/synth/engines/mock"
	"github.com/dgnsrekt/readaloud/synth/engines/openai"
	"github.com/dgnsrekt/readaloud/synth/engines/piper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	engineName string
	workers    int
	markdown   bool
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "readaloud [SOURCE]",
		Short: "Read a document aloud with streaming text-to-speech",
		Long: "\nStream a document as synthesized speech. SOURCE may be a file,\n" +
			"an http(s) URL, or \"-\" for stdin. Playback starts as soon as the\n" +
			"first chunks are synthesized; the rest of the document is fetched\n" +
			"and synthesized while you listen.",
		Example: "  readaloud article.md\n" +
			"  readaloud https://example.com/post.md\n" +
			"  cat notes.txt | readaloud -e mock -",
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		RunE:         execute,
	}
)

func execute(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		configFile = discoverConfigFile()
	}
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return err
	}

	// Grab flag values from viper; flags are the last layer on top of
	// environment and config file.
	engineName = viper.GetString("engine")
	workers = viper.GetInt("workers")
	markdown = viper.GetBool("markdown")
	verbose = viper.GetBool("verbose")

	if cmd.Flags().Changed("engine") {
		cfg.Engine = engineName
	}
	if cmd.Flags().Changed("workers") {
		cfg.Pipeline.Workers = workers
	}
	if cmd.Flags().Changed("markdown") {
		cfg.Markdown = markdown
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	// SIGINT and SIGTERM stop the session; cancellation reaches every
	// blocking point of the pipeline.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	src, closeSource, err := sourceFromArg(ctx, arg, cfg.Markdown)
	if err != nil {
		return err
	}
	defer closeSource() //nolint:errcheck

	if sizer, ok := src.(feed.Sizer); ok && sizer.Len() > 0 {
		logger.Info("reading source", "source", src.SourceID(), "size", humanize.Bytes(uint64(sizer.Len())))
	} else {
		logger.Info("reading source", "source", src.SourceID())
	}

	chunker, err := segment.NewChunker(segment.Options{
		MinSize:           cfg.Segment.MinSize,
		MaxSize:           cfg.Segment.MaxSize,
		ProtectedPatterns: append(segment.DefaultProtectedPatterns(), cfg.Segment.ExtraProtected...),
	})
	if err != nil {
		return err
	}

	engine, sampleRate, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	logger.Debug("engine selected", "engine", engine.Name(), "rate", sampleRate)

	player, err := audio.NewOtoPlayer(sampleRate)
	if err != nil {
		return err
	}
	defer player.Close() //nolint:errcheck

	orch, err := pipeline.NewOrchestrator(cfg.Pipeline, logger)
	if err != nil {
		return err
	}
	orch.OnEvent(func(e pipeline.Event) {
		switch ev := e.(type) {
		case pipeline.ChunkFailedEvent:
			logger.Warn("chunk skipped", "chunk", ev.Index, "reason", ev.Reason)
		case pipeline.StateChangedEvent:
			logger.Debug("state changed", "state", ev.State)
		}
	})
	orch.OnProgress(func(s pipeline.ProgressSnapshot) {
		fmt.Fprintf(os.Stderr, "\r%s", renderProgress(s))
	})

	sess, err := orch.Start(ctx, src, engine, player, chunker)
	if err != nil {
		return err
	}

	// Wait on a fresh context: cancellation is already wired into the
	// session, which still has teardown to finish.
	_ = sess.Wait(context.Background())
	fmt.Fprintln(os.Stderr)

	snap := sess.Progress()
	switch sess.State() {
	case pipeline.StateCompleted:
		logger.Info("finished", "played", snap.ChunksPlayed, "skipped", snap.ChunksFailed)
		return nil
	case pipeline.StateStopped:
		logger.Info("stopped", "played", snap.ChunksPlayed)
		return nil
	default:
		return sess.Err()
	}
}

// sourceFromArg builds a text source for a file path, an http(s) URL,
// or stdin ("-" or no argument). Markdown sources get their readable
// text extracted when markdown handling is on.
func sourceFromArg(ctx context.Context, arg string, markdown bool) (feed.Source, func() error, error) {
	noop := func() error { return nil }

	var (
		src     feed.Source
		closeFn func() error
	)
	switch {
	case arg == "" || arg == "-":
		src = feed.NewReaderSource(os.Stdin, "stdin")
		closeFn = noop

	case strings.Contains(arg, "://"):
		u, err := url.ParseRequestURI(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid source URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
		}
		hs, err := feed.NewHTTPSource(ctx, arg, nil)
		if err != nil {
			return nil, nil, err
		}
		src, closeFn = hs, hs.Close

	default:
		fs, err := feed.NewFileSource(arg)
		if err != nil {
			return nil, nil, err
		}
		src, closeFn = fs, fs.Close
	}

	if markdown && isMarkdown(arg) {
		src = feed.NewMarkdownSource(src)
	}
	return src, closeFn, nil
}

func isMarkdown(arg string) bool {
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".md", ".markdown", ".mdown":
		return true
	}
	return false
}

// buildEngine constructs the configured synthesis engine and returns
// it together with its output sample rate. A comma-separated list
// builds a fallback chain; the chained engines must share a sample
// rate, which is taken from the first.
func buildEngine(cfg Config) (synth.Engine, int, error) {
	names := strings.Split(cfg.Engine, ",")

	var (
		chain []synth.Engine
		rate  int
	)
	for _, name := range names {
		engine, engineRate, err := buildOneEngine(strings.TrimSpace(name), cfg)
		if err != nil {
			return nil, 0, err
		}
		if rate == 0 {
			rate = engineRate
		} else if engineRate != rate {
			return nil, 0, fmt.Errorf("engine %s outputs %d Hz but the chain runs at %d Hz", engine.Name(), engineRate, rate)
		}
		chain = append(chain, engine)
	}

	if len(chain) == 1 {
		return chain[0], rate, nil
	}
	fb, err := engines.NewFallback(chain...)
	if err != nil {
		return nil, 0, err
	}
	return fb, rate, nil
}

func buildOneEngine(name string, cfg Config) (synth.Engine, int, error) {
	switch name {
	case "mock":
		return mock.New(), mock.SampleRate, nil
	case "piper":
		e, err := piper.New(cfg.Piper)
		if err != nil {
			return nil, 0, err
		}
		return e, cfg.Piper.SampleRate, nil
	case "openai":
		e, err := openai.New(cfg.OpenAI)
		if err != nil {
			return nil, 0, err
		}
		return e, openai.MP3SampleRate, nil
	case "elevenlabs":
		e, err := elevenlabs.New(cfg.ElevenLabs)
		if err != nil {
			return nil, 0, err
		}
		return e, elevenlabs.MP3SampleRate, nil
	default:
		return nil, 0, fmt.Errorf("unknown engine %q (want mock, piper, openai, or elevenlabs)", name)
	}
}

func renderProgress(s pipeline.ProgressSnapshot) string {
	total := fmt.Sprintf("%d", s.ChunksFetched)
	if s.TotalEstimate > s.ChunksFetched {
		total = fmt.Sprintf("~%d", s.TotalEstimate)
	}
	line := fmt.Sprintf("%s %d/%s chunks, %d buffered", s.State, s.ChunksPlayed, total, s.Buffered)
	if s.EstimatedRemaining > 0 {
		line += fmt.Sprintf(", about %s left", s.EstimatedRemaining.Round(remainingResolution(s.EstimatedRemaining)))
	}
	return line
}

// remainingResolution coarsens the remaining-time display as it grows
// so the progress line does not tick every second on long documents.
func remainingResolution(remaining time.Duration) time.Duration {
	switch {
	case remaining > 10*time.Minute:
		return time.Minute
	case remaining > time.Minute:
		return 10 * time.Second
	default:
		return time.Second
	}
}

func discoverConfigFile() string {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil || len(dirs) == 0 {
		return ""
	}
	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, "readaloud.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is readaloud.yml in the user config dir)")
	rootCmd.Flags().StringVarP(&engineName, "engine", "e", "", "synthesis engine: mock, piper, openai, elevenlabs, or a comma-separated fallback chain")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "synthesis worker count")
	rootCmd.Flags().BoolVarP(&markdown, "markdown", "m", true, "extract readable text from markdown sources")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("markdown", rootCmd.Flags().Lookup("markdown"))
	_ = viper.BindPFlag("verbose", rootCmd.Flags().Lookup("verbose"))

	rootCmd.AddCommand(configCmd)
}
