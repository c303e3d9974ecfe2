/*
Copyright (C) 2023  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package control

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchDirectory drives cmd/fefserver's -watch DIR flag: any ".json" file
// written into dir is transduced and loaded under a name derived from its
// basename, the same way a manual /load?path=... call would. Runs until the
// server's Stopped channel closes or the watcher's own channels close;
// watcher errors are logged and watching continues. Callers typically launch
// it in a goroutine.
func (s *Server) WatchDirectory(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	s.log.Info("watching directory for new segments", zap.String("dir", dir))

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
				continue
			}
			s.autoLoad(ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("fswatch error", zap.Error(err))
		case <-s.Stopped():
			return nil
		}
	}
}

func (s *Server) autoLoad(path string) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s.log.Info("auto-loading file dropped into watched directory", zap.String("path", path), zap.String("name", name))

	if _, _, err := s.loadPath(name, path, s.DisableRLE, s.DisableCSV); err != nil {
		s.log.Warn("fswatch auto-load failed", zap.String("path", path), zap.Error(err))
	}
}
