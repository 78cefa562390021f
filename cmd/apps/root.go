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

package apps

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/spf13/cobra"

	configapp "github.com/basenana/dragonstash/cmd/apps/config"
	fsapi "github.com/basenana/dragonstash/cmd/apps/fuse"
	"github.com/basenana/dragonstash/config"
	"github.com/basenana/dragonstash/pkg/core"
	"github.com/basenana/dragonstash/pkg/metastore"
	"github.com/basenana/dragonstash/pkg/storage"
	"github.com/basenana/dragonstash/utils"
	"github.com/basenana/dragonstash/utils/logger"
	"github.com/basenana/dragonstash/utils/metrics"
)

func init() {
	RootCmd.AddCommand(daemonCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configapp.RunCmd)
}

var RootCmd = &cobra.Command{
	Use:   "dragonstash",
	Short: "DragonStash caching filesystem",
	Long:  `Read-only FUSE mirror of a remote backend that keeps browsing while the backend is offline.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	daemonCmd.Flags().StringVar(&config.FilePath, "config", path.Join(config.LocalUserPath(), config.DefaultConfigBase), "dragonstash config file")
}

var daemonCmd = &cobra.Command{
	Use:   "serve",
	Short: "Mount the backend and serve it",
	Run: func(cmd *cobra.Command, args []string) {
		loader := config.NewConfigLoader()
		cfg, err := loader.GetBootstrapConfig()
		if err != nil {
			panic(err)
		}

		if cfg.Debug {
			logger.SetDebug(cfg.Debug)
		}
		if metrics.InitSentry(config.VersionInfo().Version()) {
			logger.NewLogger("dragonstash").Info("sentry enabled")
		}

		stop := utils.HandleTerminalSignal()
		run(cfg, stop)
	},
}

func run(cfg config.Bootstrap, stopCh chan struct{}) {
	log := logger.NewLogger("dragonstash")
	log.Infow("starting", "version", config.VersionInfo().Version(), "backend", cfg.Backend.ID)

	cache, err := metastore.NewMetaCache(cfg.Cache, cfg.FS)
	if err != nil {
		log.Panicw("open cache failed", "err", err.Error())
	}
	info, err := cache.Info(context.Background())
	if err != nil {
		log.Panicw("load cache info failed", "err", err.Error())
	}
	log.Infow("cache opened", "cache", info.CacheID, "inodes", info.InodeCount)

	backend, err := storage.NewBackend(cfg.Backend, cfg.FS, stopCh)
	if err != nil {
		log.Panicw("init backend failed", "err", err.Error())
	}

	fs, err := core.NewFileSystem(cache, backend, cfg)
	if err != nil {
		log.Panicw("init filesystem failed", "err", err.Error())
	}
	log.Infow("filesystem ready", "backend", fs.BackendID(), "connected", backend.IsConnected(context.Background()))

	if cfg.Metric != nil && cfg.Metric.Enable {
		go serveMetric(*cfg.Metric, stopCh)
	}

	if err = fsapi.Run(stopCh, fs, cfg.FUSE, cfg.Debug); err != nil {
		log.Panicw("mount fuse failed", "err", err.Error())
	}

	log.Info("started")
	<-stopCh
	log.Info("shutdown after 5s")
	time.Sleep(time.Second * 5)

	if err = fs.Close(); err != nil {
		log.Warnw("close filesystem failed", "err", err)
	}
	if err = cache.Close(); err != nil {
		log.Warnw("close cache failed", "err", err)
	}
	log.Info("stopped")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "View version information",
	Run: func(cmd *cobra.Command, args []string) {
		vInfo := config.VersionInfo()
		fmt.Printf("Version: %s\n", vInfo.Version())
		fmt.Printf("GitCommit: %s\n", vInfo.Git)
	},
}
