package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/mtdl/internal/config"
	dlhttp "github.com/NamanBalaji/mtdl/internal/http"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

// options returns engine options for the flags set on the command line.
// Unset flags leave the configured values alone.
func (f *flags) options(cmd *cobra.Command, conf *config.DownloadConfig) ([]dlhttp.ConfigOption, error) {
	changed := cmd.Flags().Changed

	var opts []dlhttp.ConfigOption

	if changed("threads") {
		opts = append(opts, dlhttp.WithThreads(f.threads))
	}

	if changed("connection-retries") {
		opts = append(opts, dlhttp.WithConnectionRetries(f.connectionRetries))
	}

	if changed("worker-retries") {
		opts = append(opts, dlhttp.WithWorkerRetries(f.workerRetries))
	}

	if changed("retry-delay") {
		opts = append(opts, dlhttp.WithRetryDelay(f.retryDelay))
	}

	if changed("timeout") {
		opts = append(opts, dlhttp.WithTimeout(f.timeout))
	}

	if changed("ram") {
		opts = append(opts, dlhttp.WithUseRAM(f.useRAM))
	}

	if changed("temp-dir") {
		opts = append(opts, dlhttp.WithTempDir(f.tempDir))
	}

	if changed("merge-dir") {
		opts = append(opts, dlhttp.WithMergeDir(f.mergeDir))
	}

	if changed("keep-artifacts") {
		opts = append(opts, dlhttp.WithKeepArtifacts(f.keepArtifacts))
	}

	if changed("keep-in-merge-dir") {
		opts = append(opts, dlhttp.WithKeepInMergeDir(f.keepInMergeDir))
	}

	if changed("user-agent") {
		opts = append(opts, dlhttp.WithUserAgent(f.userAgent))
	}

	if changed("rate-limit") {
		limit, err := units.RAMInBytes(f.rateLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid --rate-limit %q: %w", f.rateLimit, err)
		}

		opts = append(opts, dlhttp.WithRateLimit(limit))
	}

	if changed("range") {
		rng, err := httpPkg.ParseRange(f.byteRange)
		if err != nil {
			return nil, fmt.Errorf("invalid --range %q: %w", f.byteRange, err)
		}

		opts = append(opts, dlhttp.WithRange(rng))
	}

	if len(f.headers) > 0 {
		opts = append(opts, dlhttp.WithHeaders(mergeHeaders(conf.Headers, f.headers)))
	}

	return opts, nil
}

// mergeHeaders layers "Name: value" flags over the configured headers. A
// flag replaces every configured value of the same name.
func mergeHeaders(configured map[string]string, flagged []string) *httpPkg.HeaderSet {
	hs := httpPkg.HeaderSetFromMap(configured)

	seen := make(map[string]bool)

	for _, raw := range flagged {
		for _, h := range httpPkg.ParseHeaderList(raw).Entries() {
			key := http.CanonicalHeaderKey(h.Name)
			if !seen[key] {
				hs.Set(h.Name, h.Value)
				seen[key] = true

				continue
			}

			hs.Add(h.Name, h.Value)
		}
	}

	return hs
}

// outputPath picks the destination file. An empty output uses the name from
// the URL inside dir; an existing directory gets the same name appended.
func outputPath(rawURL, output, dir string) string {
	name := nameFromURL(rawURL)

	if output == "" {
		return filepath.Join(dir, name)
	}

	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return filepath.Join(output, name)
	}

	return output
}

func nameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return httpPkg.GetFilename(nil)
	}

	return httpPkg.GetFilename(&http.Response{Header: http.Header{}, Request: &http.Request{URL: u}})
}
