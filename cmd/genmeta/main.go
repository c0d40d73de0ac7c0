// Command genmeta scans a library tree and writes its catalog document.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/starford/folio/internal/catalog"
	"github.com/starford/folio/internal/indexer"
	"github.com/starford/folio/internal/models"
)

const argsUsage = "<source-dir> <output-file> [label]"

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	cmd := &cli.Command{
		Name:      "genmeta",
		Usage:     "Generate the catalog document for a library tree",
		ArgsUsage: argsUsage,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log every indexed file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() < 2 || cmd.NArg() > 3 {
				return errUsage
			}
			if cmd.Bool("verbose") {
				logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}
			return generate(cmd.Args().Get(0), cmd.Args().Get(1), cmd.Args().Get(2), stdout, logger)
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "usage: %s %s\n", cmd.Name, argsUsage)
			return 1
		}
		logger.Error("genmeta failed", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

func generate(root, out, label string, stdout io.Writer, logger *slog.Logger) error {
	if label != "" {
		logger = logger.With(slog.String("label", label))
	}
	logger.Info("scanning library", slog.String("root", root))

	c, err := indexer.New(indexer.WithLogger(logger)).Generate(root, out)
	if err != nil {
		return err
	}
	logger.Info("catalog written", slog.String("path", out), slog.Int("books", c.TotalBooks))
	printSummary(stdout, label, out, c)
	return nil
}

// printSummary writes one line per field, sorted by field name.
func printSummary(w io.Writer, label, out string, c *models.Catalog) {
	counts := catalog.CountByField(c.Books)
	fields := make([]string, 0, len(counts))
	for f := range counts {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	if label != "" {
		fmt.Fprintf(w, "[%s] ", label)
	}
	fmt.Fprintf(w, "%d books in %d fields -> %s\n", c.TotalBooks, len(fields), out)
	for _, f := range fields {
		fmt.Fprintf(w, "  %-30s %d\n", f, counts[f])
	}
}
