package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// TarGzDirectory writes directory into <target>/<name>.tar.gz, replacing any
// existing archive. Entries are rooted at <name>/.
func TarGzDirectory(directory, target string) (string, error) {
	full, name, err := directoryName(directory)
	if err != nil {
		return "", err
	}
	tarPath := filepath.Join(target, name+".tar.gz")

	tmp, err := os.CreateTemp(target, "."+name+"-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	gw := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gw)

	err = filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(full, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(name, rel))
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err == nil {
		err = tw.Close()
	}
	if err == nil {
		err = gw.Close()
	}
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("tar %s: %w", directory, err)
	}

	if err := commit(tmp, tarPath); err != nil {
		return "", fmt.Errorf("write %s: %w", tarPath, err)
	}
	return tarPath, nil
}
