package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

var ErrUnknownFormat = errors.New("unknown archive format")

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatZip:
		return FormatZip, nil
	case FormatTarGz, "tgz", "tar":
		return FormatTarGz, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Archiver compresses one directory into <target>/<directory name><ext>.
type Archiver interface {
	Archive(directory, target string) (string, error)
	// Appends reports whether repeated calls against the same directory name
	// accumulate members instead of replacing the archive.
	Appends() bool
}

type Options struct {
	// Append keeps the members of an existing archive. Only supported by zip.
	Append bool
	// DeleteOriginal removes the directory once it has been archived.
	DeleteOriginal bool
}

func New(format Format, opts Options) (Archiver, error) {
	switch format {
	case FormatZip:
		return zipArchiver{opts: opts}, nil
	case FormatTarGz:
		if opts.Append {
			return nil, fmt.Errorf("%s archives cannot be appended to", format)
		}
		return tarGzArchiver{opts: opts}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

type zipArchiver struct {
	opts Options
}

func (a zipArchiver) Archive(directory, target string) (string, error) {
	return ZipDirectory(directory, target, a.opts.Append, a.opts.DeleteOriginal)
}

func (a zipArchiver) Appends() bool { return a.opts.Append }

type tarGzArchiver struct {
	opts Options
}

func (a tarGzArchiver) Archive(directory, target string) (string, error) {
	path, err := TarGzDirectory(directory, target)
	if err != nil {
		return "", err
	}
	if a.opts.DeleteOriginal {
		if err := os.RemoveAll(directory); err != nil {
			return "", fmt.Errorf("remove %s: %w", directory, err)
		}
	}
	return path, nil
}

func (a tarGzArchiver) Appends() bool { return false }

func directoryName(directory string) (string, string, error) {
	full, err := filepath.Abs(filepath.Clean(directory))
	if err != nil {
		return "", "", err
	}
	return full, filepath.Base(full), nil
}

// commit atomically moves a fully written temporary archive over dst, so an
// interrupted run never leaves a truncated archive behind.
func commit(tmp *os.File, dst string) error {
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
