package archive

import (
	"archive/zip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ZipDirectory deflates the files of directory into <target>/<name>.zip where
// name is the base name of directory. Members are stored as <name>/<relative path>.
//
// With appendTo set new members are written in place after the members of an
// existing archive, which are left untouched; otherwise the archive is replaced.
func ZipDirectory(directory, target string, appendTo, deleteOriginal bool) (string, error) {
	full, name, err := directoryName(directory)
	if err != nil {
		return "", err
	}
	zipPath := filepath.Join(target, name+".zip")

	if appendTo {
		err = appendZip(zipPath, full, name)
	} else {
		err = createZip(zipPath, full, name)
	}
	if err != nil {
		return "", err
	}

	if deleteOriginal {
		if err := os.RemoveAll(directory); err != nil {
			return "", fmt.Errorf("remove %s: %w", directory, err)
		}
	}
	return zipPath, nil
}

func createZip(zipPath, full, name string) error {
	tmp, err := os.CreateTemp(filepath.Dir(zipPath), "."+name+"-*.zip")
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(tmp)

	fail := func(err error) error {
		zw.Close()
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := addDirectory(zw, full, name); err != nil {
		return fail(fmt.Errorf("zip %s: %w", full, err))
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := commit(tmp, zipPath); err != nil {
		return fmt.Errorf("write %s: %w", zipPath, err)
	}
	return nil
}

// appendZip writes the new local entries over the central directory of the
// archive at zipPath, then a central directory listing the old and the new
// members. On error the original directory is written back.
func appendZip(zipPath, full, name string) error {
	f, err := os.OpenFile(zipPath, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return createZip(zipPath, full, name)
	} else if err != nil {
		return fmt.Errorf("open %s: %w", zipPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	old, err := readDirectoryEnd(f, info.Size())
	if err != nil {
		return fmt.Errorf("read %s: %w", zipPath, err)
	}
	tail := make([]byte, info.Size()-int64(old.offset))
	if _, err := f.ReadAt(tail, int64(old.offset)); err != nil {
		return fmt.Errorf("read %s: %w", zipPath, err)
	}

	restore := func(cause error) error {
		if _, err := f.WriteAt(tail, int64(old.offset)); err == nil {
			_ = f.Truncate(info.Size())
		}
		return cause
	}

	if _, err := f.Seek(int64(old.offset), io.SeekStart); err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	zw.SetOffset(int64(old.offset))
	if err := addDirectory(zw, full, name); err != nil {
		return restore(fmt.Errorf("zip %s: %w", full, err))
	}
	if err := zw.Close(); err != nil {
		return restore(fmt.Errorf("write %s: %w", zipPath, err))
	}

	end, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return restore(err)
	}
	added, err := readDirectoryEnd(f, end)
	if err != nil {
		return restore(fmt.Errorf("read %s: %w", zipPath, err))
	}

	dir := make([]byte, 0, old.size+added.size+directory64EndLen+directory64LocLen+directoryEndLen)
	dir = append(dir, tail[:old.size]...)
	dir = dir[:old.size+added.size]
	if _, err := f.ReadAt(dir[old.size:], int64(added.offset)); err != nil {
		return restore(fmt.Errorf("read %s: %w", zipPath, err))
	}
	combined := directoryEnd{
		records: old.records + added.records,
		size:    old.size + added.size,
		offset:  added.offset,
	}
	dir = appendDirectoryEnd(dir, combined)

	if _, err := f.WriteAt(dir, int64(added.offset)); err != nil {
		return restore(fmt.Errorf("write %s: %w", zipPath, err))
	}
	if err := f.Truncate(int64(added.offset) + int64(len(dir))); err != nil {
		return restore(fmt.Errorf("write %s: %w", zipPath, err))
	}
	return f.Sync()
}

func addDirectory(zw *zip.Writer, full, name string) error {
	return filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(full, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(name, rel))
		hdr.Method = zip.Deflate
		return addFile(zw, hdr, path)
	})
}

func addFile(zw *zip.Writer, hdr *zip.FileHeader, path string) error {
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

const (
	directoryEndSignature   = 0x06054b50
	directory64LocSignature = 0x07064b50
	directory64EndSignature = 0x06064b50

	directoryEndLen   = 22
	directory64LocLen = 20
	directory64EndLen = 56

	uint16max = 0xffff
	uint32max = 0xffffffff
)

var errNotZip = errors.New("not a valid zip file")

// directoryEnd locates the central directory of an archive.
type directoryEnd struct {
	records uint64
	size    uint64
	offset  uint64
}

func readDirectoryEnd(r io.ReaderAt, size int64) (directoryEnd, error) {
	var d directoryEnd
	search := int64(directoryEndLen + uint16max)
	if search > size {
		search = size
	}
	buf := make([]byte, search)
	if _, err := r.ReadAt(buf, size-search); err != nil && !errors.Is(err, io.EOF) {
		return d, err
	}

	p := -1
	for i := len(buf) - directoryEndLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) == directoryEndSignature {
			p = i
			break
		}
	}
	if p < 0 {
		return d, errNotZip
	}
	b := buf[p:]
	d.records = uint64(binary.LittleEndian.Uint16(b[10:]))
	d.size = uint64(binary.LittleEndian.Uint32(b[12:]))
	d.offset = uint64(binary.LittleEndian.Uint32(b[16:]))
	if d.records != uint16max && d.size != uint32max && d.offset != uint32max {
		return d, nil
	}

	// zip64: the locator sits right before the end record.
	loc := size - search + int64(p) - directory64LocLen
	if loc < 0 {
		return d, errNotZip
	}
	lb := make([]byte, directory64LocLen)
	if _, err := r.ReadAt(lb, loc); err != nil {
		return d, err
	}
	if binary.LittleEndian.Uint32(lb) != directory64LocSignature {
		return d, errNotZip
	}
	eb := make([]byte, directory64EndLen)
	if _, err := r.ReadAt(eb, int64(binary.LittleEndian.Uint64(lb[8:]))); err != nil {
		return d, err
	}
	if binary.LittleEndian.Uint32(eb) != directory64EndSignature {
		return d, errNotZip
	}
	d.records = binary.LittleEndian.Uint64(eb[32:])
	d.size = binary.LittleEndian.Uint64(eb[40:])
	d.offset = binary.LittleEndian.Uint64(eb[48:])
	return d, nil
}

// appendDirectoryEnd appends the end records for a central directory that
// ends exactly where they start.
func appendDirectoryEnd(b []byte, d directoryEnd) []byte {
	le := binary.LittleEndian
	records, size, offset := d.records, d.size, d.offset
	if records >= uint16max || size >= uint32max || offset >= uint32max {
		at := d.offset + d.size
		b = le.AppendUint32(b, directory64EndSignature)
		b = le.AppendUint64(b, directory64EndLen-12)
		b = le.AppendUint16(b, 45) // version made by
		b = le.AppendUint16(b, 45) // version needed
		b = le.AppendUint32(b, 0)
		b = le.AppendUint32(b, 0)
		b = le.AppendUint64(b, records)
		b = le.AppendUint64(b, records)
		b = le.AppendUint64(b, size)
		b = le.AppendUint64(b, offset)

		b = le.AppendUint32(b, directory64LocSignature)
		b = le.AppendUint32(b, 0)
		b = le.AppendUint64(b, at)
		b = le.AppendUint32(b, 1)

		records, size, offset = uint16max, uint32max, uint32max
	}
	b = le.AppendUint32(b, directoryEndSignature)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, uint16(records))
	b = le.AppendUint16(b, uint16(records))
	b = le.AppendUint32(b, uint32(size))
	b = le.AppendUint32(b, uint32(offset))
	b = le.AppendUint16(b, 0)
	return b
}
