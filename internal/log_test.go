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


package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLogAlsoToFile(t *testing.T) {
	var out bytes.Buffer
	logStdout = &out
	defer func() { logStdout = os.Stdout }()

	fileName := filepath.Join(t.TempDir(), "xslit.log")
	if err := LogAlsoToFile(fileName); err != nil {
		t.Fatal(err)
	}
	LogPrintf("%d: %s\n", 3, "aligned")
	LogPrintln("done")
	LogSync()
	if err := LogAlsoToFile(""); err != nil {
		t.Fatal(err)
	}

	want := "3: aligned\ndone\n"
	if out.String() != want {
		t.Errorf("stdout=%q; want %q", out.String(), want)
	}
	data, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != want {
		t.Errorf("file=%q; want %q", data, want)
	}
}

func TestLogConcurrentWriters(t *testing.T) {
	var out bytes.Buffer
	logStdout = &out
	defer func() { logStdout = os.Stdout }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				LogPrint("x")
			}
		}()
	}
	wg.Wait()
	if out.Len() != 800 {
		t.Errorf("len=%d; want 800", out.Len())
	}
}
