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


package main

import (
	"errors"
	"testing"

	"github.com/mlnoga/xslit/internal/config"
	"github.com/mlnoga/xslit/internal/ops/panorama"
)

func TestParseSlice(t *testing.T) {
	s, err := parseSlice("", "10, 5", 30)
	if err != nil {
		t.Fatal(err)
	}
	if want := (panorama.Slice{StartFrame: 0, EndFrame: 29, StartColumn: 10, EndColumn: 5}); s != want {
		t.Errorf("slice=%s; want %s", s, want)
	}
	if s, err = parseSlice("3,7", "0,0", 30); err != nil || s.StartFrame != 3 || s.EndFrame != 7 {
		t.Errorf("slice=%s err=%v", s, err)
	}
	for _, tc := range [][2]string{{"1", "0,0"}, {"a,2", "0,0"}, {"", "1,2,3"}} {
		if _, err := parseSlice(tc[0], tc[1], 30); !errors.Is(err, panorama.ErrInvalidSliceBounds) {
			t.Errorf("parseSlice(%q,%q) err=%v; want %v", tc[0], tc[1], err, panorama.ErrInvalidSliceBounds)
		}
	}
}

func TestSequenceMotion(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Motion.Ransac.TranslationOnly = false
	s := &sequence{name: "seq", numFrames: 4}
	if m := s.motion(cfg, true); !m.Ransac.TranslationOnly || m.Sequence != "seq" {
		t.Errorf("panorama motion translationOnly=%v sequence=%s; want true, seq", m.Ransac.TranslationOnly, m.Sequence)
	}
	if m := s.motion(cfg, false); m.Ransac.TranslationOnly {
		t.Errorf("refocus motion translationOnly=true; want configured false")
	}
}
