// Package atomicfile implements the persistence discipline shared by the
// task and event stores: whole-file writes go to a temp file in the target
// directory and are renamed into place, and the previous live file is
// copied aside to a timestamped backup before being overwritten. A crash
// mid-write therefore never leaves a corrupt primary file with no usable
// backup.
package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// backupStamp is the timestamp layout embedded in backup file names.
const backupStamp = "20060102-150405"

// WriteFile atomically replaces path with data. The temp file lives in the
// same directory as path so the final rename stays on one filesystem.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("atomicfile: path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any failure path.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Backup copies the current contents of path into backupDir as
// "<prefix>-<timestamp><ext>", where ext is taken from path. A missing
// live file is not an error; there is simply nothing to back up yet.
// The backup file name is returned when a backup was written.
func Backup(path, backupDir, prefix string, now time.Time) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s%s", prefix, now.Format(backupStamp), filepath.Ext(path))
	dst := filepath.Join(backupDir, name)

	// Timestamps have second resolution; two saves inside the same second
	// would collide, so disambiguate with a numeric suffix.
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
			break
		}
		dst = filepath.Join(backupDir, fmt.Sprintf("%s-%s.%d%s",
			prefix, now.Format(backupStamp), i, filepath.Ext(path)))
	}

	if err := copyFile(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// ListBackups returns the backup files for prefix in backupDir, newest
// first. Ordering parses the embedded timestamp and the numeric collision
// suffix, so same-second backups ("...-150405.json", "...-150405.1.json")
// come back in true write order rather than lexical order.
func ListBackups(backupDir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix+"-") {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		si, ni := backupSortKey(names[i], prefix)
		sj, nj := backupSortKey(names[j], prefix)
		if si != sj {
			return si > sj
		}
		return ni > nj
	})

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(backupDir, n)
	}
	return paths, nil
}

// backupSortKey splits "<prefix>-<stamp>[.N]<ext>" into the stamp (whose
// layout compares chronologically as a string) and the collision sequence
// (0 when absent).
func backupSortKey(name, prefix string) (stamp string, seq int) {
	rest := strings.TrimPrefix(name, prefix+"-")
	rest = strings.TrimSuffix(rest, filepath.Ext(rest))

	stamp = rest
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		stamp = rest[:i]
		if n, err := strconv.Atoi(rest[i+1:]); err == nil {
			seq = n
		}
	}
	return stamp, seq
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
