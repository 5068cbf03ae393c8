// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package motion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mlnoga/xslit/internal/geom"
)

var ErrPersistenceMismatch = errors.New("persisted motion does not match sequence")
var ErrMotionFileAbsent = errors.New("motion file absent")

// File name for the persisted motion of a sequence
func FileName(motionDir, sequence string) string {
	return filepath.Join(motionDir, sequence+".csv")
}

// Reads pairwise transforms for a sequence of n frames. The layout is 9 rows by n-1 columns:
// column k holds pair k, row r its r-th entry in row-major order
func ReadCSV(r io.Reader, n int) ([]geom.Homography, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPersistenceMismatch, err.Error())
	}
	if len(records) != 9 {
		return nil, fmt.Errorf("%w: %d rows, want 9", ErrPersistenceMismatch, len(records))
	}
	pairs := n - 1
	if pairs < 1 {
		return nil, fmt.Errorf("%w: %d frames", ErrPersistenceMismatch, n)
	}
	pw := make([]geom.Homography, pairs)
	for row, rec := range records {
		if len(rec) != pairs {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrPersistenceMismatch, row, len(rec), pairs)
		}
		for k, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %d: %s", ErrPersistenceMismatch, row, k, err.Error())
			}
			pw[k][row] = v
		}
	}
	return pw, nil
}

// Writes pairwise transforms in the layout read by ReadCSV
func WriteCSV(w io.Writer, pw []geom.Homography) error {
	cw := csv.NewWriter(w)
	rec := make([]string, len(pw))
	for row := 0; row < 9; row++ {
		for k, h := range pw {
			rec[k] = fmt.Sprintf("%.18e", h[row])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Loads the persisted motion of a sequence of n frames
func LoadFile(fileName string, n int) ([]geom.Homography, error) {
	f, err := os.Open(fileName)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMotionFileAbsent, fileName)
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	pw, err := ReadCSV(f, n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return pw, nil
}

// Saves motion atomically: writes a temporary file next to the target, then renames it
func SaveFile(fileName string, pw []geom.Homography) error {
	if len(pw) == 0 {
		return ErrMotionNotComputed
	}
	dir := filepath.Dir(fileName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(fileName)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if err := WriteCSV(tmp, pw); err != nil {
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
	return os.Rename(tmpName, fileName)
}

// True if the error means persisted motion cannot be used and must be recomputed
func NeedsRecompute(err error) bool {
	return errors.Is(err, ErrMotionFileAbsent) || errors.Is(err, ErrPersistenceMismatch)
}
