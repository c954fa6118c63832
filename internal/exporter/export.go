package exporter

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"MarketScreener/internal/model"
)

// ExportRun writes the run's selections to dir and, when includeBars is
// set, one bar file per selected symbol that kept its history. It returns
// the written paths.
func ExportRun(s Saver, dir string, run *model.Run, includeBars bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	var paths []string
	stamp := run.StartedAt.UTC().Format("20060102T150405")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_selections.%s", stamp, run.Strategy, s.Extension()))
	if err := s.SaveResults(Results(run.Selected), path); err != nil {
		return nil, fmt.Errorf("save selections: %w", err)
	}
	paths = append(paths, path)

	if includeBars {
		for _, res := range run.Selected {
			if len(res.History) == 0 {
				continue
			}
			bp := filepath.Join(dir, fmt.Sprintf("%s_%s_bars.%s", stamp, safeName(res.Symbol), s.Extension()))
			if err := s.SaveBars(Bars(res.History), bp); err != nil {
				return paths, fmt.Errorf("save bars %s: %w", res.Symbol, err)
			}
			paths = append(paths, bp)
		}
	}
	log.Printf("[INFO] exported run %s: %d files in %s", run.ID, len(paths), dir)
	return paths, nil
}

func safeName(symbol string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '^', ' ':
			return '_'
		}
		return r
	}, symbol)
}
