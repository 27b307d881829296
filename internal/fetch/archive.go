package fetch

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// IsArchive reports whether path has an extension ExtractAndIsolate understands.
func IsArchive(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".zip") || strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz")
}

// ArchiveBase strips the archive extension from a file name.
func ArchiveBase(name string) string {
	base := filepath.Base(name)
	lower := strings.ToLower(base)
	for _, ext := range []string{".tar.gz", ".tgz", ".zip"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

// ExtractAndIsolate unpacks archive into a scratch directory below destDir and moves the
// interesting part next to it under a "<prefix>_" name.
//
// With contentIsFolder, a single top-level folder becomes "<prefix>_<folder>"; anything
// else is wrapped into "<prefix>_<archive base>". Otherwise the first top-level file ending
// in requiredExt becomes "<prefix>_<file>". The scratch directory is always removed.
func ExtractAndIsolate(archive, destDir, prefix, requiredExt string, contentIsFolder bool) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	scratch, err := os.MkdirTemp(destDir, ".extract-*")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := extract(archive, scratch); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(archive), err)
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	if contentIsFolder {
		if len(entries) == 1 && entries[0].IsDir() {
			return moveInto(filepath.Join(scratch, entries[0].Name()), destDir, prefixed(prefix, entries[0].Name()))
		}
		if len(entries) == 0 {
			return "", fmt.Errorf("archive %s is empty", filepath.Base(archive))
		}
		base := strings.TrimPrefix(ArchiveBase(archive), prefix+"_")
		return moveInto(scratch, destDir, prefixed(prefix, base))
	}

	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), strings.ToLower(requiredExt)) {
			return moveInto(filepath.Join(scratch, e.Name()), destDir, prefixed(prefix, e.Name()))
		}
	}
	return "", fmt.Errorf("archive %s has no top-level %s file", filepath.Base(archive), requiredExt)
}

func prefixed(prefix, name string) string {
	if prefix == "" || strings.HasPrefix(name, prefix+"_") {
		return name
	}
	return prefix + "_" + name
}

func moveInto(src, destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%s already exists", target)
	}
	if err := os.Rename(src, target); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", name, err)
	}
	return target, nil
}

func extract(archive, dest string) error {
	lower := strings.ToLower(archive)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return unzip(archive, dest)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return untarGz(archive, dest)
	default:
		return fmt.Errorf("unsupported archive type: %s", filepath.Base(archive))
	}
}

// safeJoin rejects entries escaping dest (zip slip).
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return target, nil
}

func unzip(archive, dest string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, file := range reader.File {
		target, err := safeJoin(dest, file.Name)
		if err != nil {
			return err
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, rc, file.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func untarGz(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(header.Mode)); err != nil {
				return err
			}
		}
		// Links and devices are skipped.
	}
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if mode.Perm() == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
