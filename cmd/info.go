package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/mtdl/internal/config"
	"github.com/NamanBalaji/mtdl/internal/view"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

func newInfoCmd() *cobra.Command {
	var headerFlags []string

	cmd := &cobra.Command{
		Use:   "info URL",
		Short: "Probe a URL and print its size, range support and headers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.GetConfig()
			if err != nil {
				return err
			}

			client := httpPkg.NewClient(
				httpPkg.WithTimeout(conf.Download.Timeout),
				httpPkg.WithUserAgent(conf.Download.UserAgent),
			)

			res, err := client.Probe(context.Background(), args[0], mergeHeaders(conf.Download.Headers, headerFlags))
			if err != nil {
				return err
			}

			printInfo(cmd.OutOrStdout(), res)

			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&headerFlags, "header", "H", []string{}, "Custom header; can be repeated")

	return cmd
}

func printInfo(w io.Writer, res *httpPkg.ProbeResult) {
	size := "unknown"
	if res.ContentLength >= 0 {
		size = fmt.Sprintf("%s (%d bytes)", units.BytesSize(float64(res.ContentLength)), res.ContentLength)
	}

	row := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", view.LabelStyle.Render(fmt.Sprintf("%-15s", label)), view.ValueStyle.Render(value))
	}

	row("Status", fmt.Sprint(res.StatusCode))
	row("Size", size)
	row("Accept-Ranges", fmt.Sprint(res.AcceptRanges))
	row("Filename", res.Filename)

	if !res.LastModified.IsZero() {
		row("Last-Modified", res.LastModified.String())
	}

	names := make([]string, 0, len(res.Header))
	for name := range res.Header {
		names = append(names, name)
	}

	sort.Strings(names)

	fmt.Fprintln(w, view.HeaderStyle.Render("Headers"))

	for _, name := range names {
		row("  "+name, strings.Join(res.Header[name], ", "))
	}
}
