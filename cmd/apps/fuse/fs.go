/*
 Copyright 2026 DragonStash Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package fuse

import (
	"log"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/utils/logger"
)

const (
	fsName = "dragonstash"
)

type DragonFS struct {
	Path      string
	Display   string
	MountOpts []string

	raw    *rawFS
	cfg    config.FUSE
	logger *zap.SugaredLogger

	// debug will enable debug log and SingleThreaded
	debug bool
}

func (d *DragonFS) Start(stopCh <-chan struct{}) error {
	opt := &fuse.MountOptions{
		AllowOther:     d.cfg.AllowOther,
		FsName:         fsName,
		Name:           fsName,
		Options:        fsMountOptions(d.Display, d.MountOpts),
		SingleThreaded: d.debug,
		Debug:          d.cfg.VerboseLog,
	}

	// go-fuse reports through the std logger
	log.SetFlags(0)
	log.SetOutput(logger.NewFuseLogger().Writer())

	server, err := fuse.NewServer(d.raw, d.Path, opt)
	if err != nil {
		return err
	}
	server.SetDebug(d.cfg.VerboseLog)

	go server.Serve()

	go func() {
		<-stopCh
		d.umount(server)
	}()

	return d.waitMount(server)
}

func (d *DragonFS) waitMount(server *fuse.Server) error {
	var (
		timeout = time.NewTimer(time.Minute)
		finish  = make(chan struct{})
	)
	defer timeout.Stop()
	go func() {
		d.logger.Infow("waiting mount finish", "path", d.Path)
		select {
		case <-timeout.C:
			if err := server.Unmount(); err != nil {
				d.logger.Errorw("mount timeout and clean mount point failed", "err", err.Error())
			}
			d.logger.Panicw("wait mount timeout")
		case <-finish:
			d.logger.Infow("fuse mounted", "path", d.Path)
			return
		}
	}()
	if err := server.WaitMount(); err != nil {
		return err
	}
	close(finish)
	return nil
}

func (d *DragonFS) SetDebug(debug bool) {
	if debug {
		d.logger.Warn("enable debug mode")
	}
	d.debug = debug
}

func (d *DragonFS) umount(server *fuse.Server) {
	d.logger.Infof("umount %s", d.Path)
	err := server.Unmount()
	if err == nil {
		return
	}

	d.logger.Errorw("umount failed, try again ", "err", err)
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("umount", "-f", d.Path)
	default:
		cmd = exec.Command("umount", "-l", d.Path)
	}

	if err := cmd.Run(); err != nil {
		d.logger.Errorw("umount failed", "err", err.Error())
	}
	d.logger.Info("umount finish")
}

func NewDragonFS(fs FileSystem, cfg config.FUSE) (*DragonFS, error) {
	var st syscall.Stat_t
	err := syscall.Stat(cfg.RootPath, &st)
	if err != nil {
		return nil, err
	}

	if cfg.DisplayName == "" {
		cfg.DisplayName = fsName
	}

	return &DragonFS{
		Path:      cfg.RootPath,
		Display:   cfg.DisplayName,
		MountOpts: cfg.MountOptions,
		raw:       newRawFS(fs, cfg),
		cfg:       cfg,
		logger:    logger.NewLogger("fuse"),
	}, nil
}

func newRawFS(fs FileSystem, cfg config.FUSE) *rawFS {
	return &rawFS{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		entryTimeout:  durationOrDefault(cfg.EntryTimeout, defaultEntryTimeout),
		attrTimeout:   durationOrDefault(cfg.AttrTimeout, defaultAttrTimeout),
		logger:        logger.NewLogger("fuse.raw"),
	}
}

func Run(stopCh <-chan struct{}, fs FileSystem, cfg config.FUSE, debug bool) error {
	if !cfg.Enable {
		return nil
	}
	fsServer, err := NewDragonFS(fs, cfg)
	if err != nil {
		return err
	}
	fsServer.SetDebug(debug)
	return fsServer.Start(stopCh)
}
