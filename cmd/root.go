package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/mtdl/internal/config"
	"github.com/NamanBalaji/mtdl/internal/filesystem"
	dlhttp "github.com/NamanBalaji/mtdl/internal/http"
	"github.com/NamanBalaji/mtdl/internal/logger"
	"github.com/NamanBalaji/mtdl/internal/progress"
	"github.com/NamanBalaji/mtdl/internal/repository"
	"github.com/NamanBalaji/mtdl/internal/view"
)

var Version = "dev"

var errDownloadFailed = errors.New("download failed")

// flags holds the root command's flag values.
type flags struct {
	output            string
	threads           int
	connectionRetries int
	workerRetries     int
	retryDelay        time.Duration
	timeout           time.Duration
	headers           []string
	byteRange         string
	useRAM            bool
	tempDir           string
	mergeDir          string
	keepArtifacts     bool
	keepInMergeDir    bool
	rateLimit         string
	userAgent         string
	single            bool
	noHistory         bool
	debug             bool
	verbose           bool
}

var rootFlags flags

var rootCmd = &cobra.Command{
	Use:           "mtdl [flags] URL",
	Short:         "mtdl downloads a file over HTTP using parallel range requests",
	Version:       Version,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return logger.InitLogging(rootFlags.debug, filepath.Join(xdg.StateHome, "mtdl", "mtdl.log"))
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		logger.Close()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.GetConfig()
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", config.FilePath(), err)
		}

		opts, err := conf.Download.HttpOptions()
		if err != nil {
			return err
		}

		overrides, err := rootFlags.options(cmd, conf.Download)
		if err != nil {
			return err
		}

		opts = append(opts, overrides...)

		if rootFlags.single {
			return runSingle(cmd.OutOrStdout(), args[0], rootFlags.output, opts)
		}

		if conf.HistoryEnabled() && !rootFlags.noHistory {
			repo, err := repository.NewBboltRepository(conf.History.Path)
			if err != nil {
				logger.Warnf("History disabled, failed to open %s: %v", conf.History.Path, err)
			} else {
				defer repo.Close()
				opts = append(opts, dlhttp.WithRecorder(repo))
			}
		}

		return runDownload(cmd.OutOrStdout(), args[0], outputPath(args[0], rootFlags.output, conf.Download.Dir), opts)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errDownloadFailed) {
			fmt.Fprintln(os.Stderr, view.ErrorStyle.Render(err.Error()))
		}

		os.Exit(1)
	}
}

func init() {
	rootFlags.register(rootCmd)

	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newHistoryCmd())
}

func (f *flags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output file or directory (name inferred from the URL if omitted)")
	cmd.Flags().IntVarP(&f.threads, "threads", "t", 4, "Number of chunks downloaded in parallel")
	cmd.Flags().IntVar(&f.connectionRetries, "connection-retries", 2, "Request retries per worker cycle (-1 = unlimited)")
	cmd.Flags().IntVar(&f.workerRetries, "worker-retries", 1, "Worker restarts after connection retries run out (-1 = unlimited)")
	cmd.Flags().DurationVar(&f.retryDelay, "retry-delay", time.Second, "Base delay between retries")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "Connection timeout (eg. 5s, 1m)")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", []string{}, "Custom header (like 'Authorization: Bearer x'); can be repeated")
	cmd.Flags().StringVar(&f.byteRange, "range", "", "Download only this byte range (from-to, from- or -to)")
	cmd.Flags().BoolVar(&f.useRAM, "ram", false, "Keep chunks in memory instead of temporary files")
	cmd.Flags().StringVar(&f.tempDir, "temp-dir", "", "Directory for chunk files (default: output directory)")
	cmd.Flags().StringVar(&f.mergeDir, "merge-dir", "", "Directory the merge writes into (default: temp directory)")
	cmd.Flags().BoolVar(&f.keepArtifacts, "keep-artifacts", false, "Keep chunk files when the download fails or is canceled")
	cmd.Flags().BoolVar(&f.keepInMergeDir, "keep-in-merge-dir", false, "Leave the finished file in the merge directory")
	cmd.Flags().StringVar(&f.rateLimit, "rate-limit", "", "Bandwidth cap per second (eg. 512KiB, 2MiB)")
	cmd.Flags().StringVarP(&f.userAgent, "user-agent", "a", "", "User agent")
	cmd.Flags().BoolVar(&f.single, "single", false, "Stream over one connection to the output (stdout if -o is omitted)")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record this run in the history")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Print the per-chunk table when done")

	cmd.PersistentFlags().BoolVar(&f.debug, "debug", false, "Enable debug logging")
}

// interruptible returns a context canceled by SIGINT or SIGTERM, and calls
// stop on the first signal.
func interruptible(stop func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			logger.Infof("Interrupt received, stopping download")
			stop()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func runDownload(out io.Writer, url, output string, opts []dlhttp.ConfigOption) error {
	bar := progressbar.DefaultBytes(-1, "connecting")

	opts = append(opts, dlhttp.WithCallbacks(dlhttp.Callbacks{
		DownloadStarted: func(contentLength int64) {
			if contentLength > 0 {
				bar.ChangeMax64(contentLength)
			}

			bar.Describe("downloading")
		},
		Progress: func(chunks map[int]dlhttp.ChunkSnapshot, p dlhttp.Progress) {
			if active := view.ActiveChunks(chunks); active > 0 {
				bar.Describe(fmt.Sprintf("downloading (%d/%d chunks)", active, len(chunks)))
			}

			_ = bar.Set64(p.Downloaded)
		},
		MergeStarted: func(chunks int) {
			bar.Describe(fmt.Sprintf("merging %d chunks", chunks))
		},
	}))

	d := dlhttp.NewDownloader(url, output, opts...)

	ctx, cancel := interruptible(d.Stop)
	defer cancel()

	res, err := d.Download(ctx)
	if err != nil {
		logger.Debugf("Download ended with %d bytes remaining", progress.Remaining(d.Progress()))
	}

	_ = bar.Finish()
	fmt.Fprintln(out)

	if rootFlags.verbose {
		fmt.Fprint(out, view.ChunkTable(d.Chunks()))
	}

	fmt.Fprintln(out, view.Summary(res))

	if err != nil {
		return errDownloadFailed
	}

	return nil
}

func runSingle(out io.Writer, url, output string, opts []dlhttp.ConfigOption) error {
	sink := out

	if output != "" {
		output = filesystem.NumberedPath(output)

		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()

		sink = f
	}

	s := dlhttp.NewSingleDownloader(url, opts...)

	ctx, cancel := interruptible(s.Stop)
	defer cancel()

	res, err := s.Download(ctx, sink)
	if err != nil {
		fmt.Fprintln(os.Stderr, view.Summary(res))
		return errDownloadFailed
	}

	return nil
}
