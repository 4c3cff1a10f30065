package report

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/lineprof/lineprof/pkg/profile"
	"github.com/lineprof/lineprof/pkg/source"
)

// WriteSourceArchive bundles all referenced source files into a zip, with
// absolute path components stripped. Unreadable files are skipped; the
// profile itself has already been written elsewhere.
func WriteSourceArchive(out io.Writer, g *profile.GlobalProfile, src *source.Provider) error {
	zw := zip.NewWriter(out)
	if err := addSources(zw, g, src); err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

// WriteProfileArchive writes a Callgrind profile plus all referenced
// sources into one zip; source paths are relative to the profile file, so
// Callgrind readers opened on the extracted tree resolve them directly.
func WriteProfileArchive(out io.Writer, g *profile.GlobalProfile, src *source.Provider, profileName, creator string) error {
	zw := zip.NewWriter(out)
	entry, err := zw.Create(profileName)
	if err != nil {
		zw.Close()
		return errors.Wrap(err, "failed to create profile archive entry")
	}
	cw := NewCallgrindWriter(
		WithCallgrindCreator(creator),
		WithCallgrindRelativePaths(true),
	)
	if err := cw.Write(entry, g); err != nil {
		zw.Close()
		return errors.Wrap(err, "failed to write archived profile")
	}
	if err := addSources(zw, g, src); err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

func addSources(zw *zip.Writer, g *profile.GlobalProfile, src *source.Provider) error {
	for _, name := range g.NamesSorted() {
		lines := src.Lines(name)
		if lines == nil {
			continue
		}
		entry, err := zw.Create(relPath(name))
		if err != nil {
			return errors.Wrapf(err, "failed to create archive entry for %s", name)
		}
		if _, err := io.WriteString(entry, strings.Join(lines, "\n")+"\n"); err != nil {
			return errors.Wrapf(err, "failed to archive %s", name)
		}
	}
	return nil
}
