package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	treeIndent     = "    "
	treeBranch     = "├── "
	treeLastBranch = "└── "
	treeVertical   = "│   "
)

type treeStats struct {
	dirs  int
	files int
	bytes int64
}

// WriteSaveRootTree renders the artifact layout under saveRoot as a text tree
// and writes it to outputPath. File entries carry their on-disk size, so the
// listing doubles as a quick audit of what a run actually downloaded.
func WriteSaveRootTree(saveRoot, outputPath string, log *logrus.Entry) error {
	info, err := os.Stat(saveRoot)
	if err != nil {
		return fmt.Errorf("%w: stat save root '%s': %w", ErrFilesystem, saveRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: save root '%s' is not a directory", ErrFilesystem, saveRoot)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("%w: create tree file '%s': %w", ErrFilesystem, outputPath, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	defer w.Flush()

	if _, err := fmt.Fprintf(w, "%s/\n", filepath.Base(saveRoot)); err != nil {
		return err
	}

	var stats treeStats
	if err := writeTreeLevel(w, saveRoot, "", &stats, log); err != nil {
		return fmt.Errorf("render tree for '%s': %w", saveRoot, err)
	}

	_, err = fmt.Fprintf(w, "\n%d directories, %d files, %s\n",
		stats.dirs, stats.files, humanize.Bytes(uint64(stats.bytes)))
	return err
}

func writeTreeLevel(w io.Writer, dirPath, indent string, stats *treeStats, log *logrus.Entry) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("read directory '%s': %w", dirPath, err)
	}

	// Directories first, then files, each group alphabetical
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	for i, entry := range entries {
		last := i == len(entries)-1
		branch := treeBranch
		if last {
			branch = treeLastBranch
		}

		if entry.IsDir() {
			if _, err := fmt.Fprintf(w, "%s%s%s/\n", indent, branch, entry.Name()); err != nil {
				return err
			}
			stats.dirs++
			next := indent + treeVertical
			if last {
				next = indent + treeIndent
			}
			if err := writeTreeLevel(w, filepath.Join(dirPath, entry.Name()), next, stats, log); err != nil {
				return err
			}
			continue
		}

		line := fmt.Sprintf("%s%s%s", indent, branch, entry.Name())
		if fi, statErr := entry.Info(); statErr == nil {
			line += fmt.Sprintf(" (%s)", humanize.Bytes(uint64(fi.Size())))
			stats.bytes += fi.Size()
		} else {
			log.Warnf("Could not stat '%s' for tree listing: %v", filepath.Join(dirPath, entry.Name()), statErr)
		}
		stats.files++

		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
