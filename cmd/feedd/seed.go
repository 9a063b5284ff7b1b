package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chdown/preload/internal/catalog"
	"github.com/chdown/preload/internal/config"
)

func addSeed(topLevel *cobra.Command) {
	var (
		file string
		feed string
	)

	cmd := &cobra.Command{
		Use:   "seed [uri...]",
		Short: "Append media URIs to a feed in the catalog.",
		Example: `
feedd seed file:///clips/a.mp4 file:///clips/b.mp4
feedd seed --file clips.txt --feed kitchen
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if feed == "" {
				feed = cfg.Feed.ID
			}

			items := uriItems(args)
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", file, err)
				}
				defer f.Close()
				more, err := readItems(f)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				items = append(items, more...)
			}
			if len(items) == 0 {
				return fmt.Errorf("no URIs given")
			}

			store, err := catalog.Open(cfg.Catalog.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			added, err := store.Add(context.Background(), feed, items)
			if err != nil {
				return err
			}
			total, err := store.Count(context.Background(), feed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d items to feed %q (%d total)\n", len(added), feed, total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File with one URI per line, optionally followed by a tab and a title")
	cmd.Flags().StringVar(&feed, "feed", "", "Feed ID (default: feed.id from the config)")

	topLevel.AddCommand(cmd)
}

func uriItems(uris []string) []catalog.Item {
	items := make([]catalog.Item, 0, len(uris))
	for _, uri := range uris {
		items = append(items, catalog.Item{URI: uri})
	}
	return items
}

// readItems parses "uri[\ttitle]" lines. Blank lines and # comments are skipped.
func readItems(r io.Reader) ([]catalog.Item, error) {
	var items []catalog.Item
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		uri, title, _ := strings.Cut(line, "\t")
		items = append(items, catalog.Item{URI: strings.TrimSpace(uri), Title: strings.TrimSpace(title)})
	}
	return items, scanner.Err()
}
