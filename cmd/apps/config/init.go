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

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/basenana/dragonstash/config"
)

var localDir string

func init() {
	initCmd.Flags().StringVar(&localDir, "local-dir", "", "directory mirrored by the local backend, default <workspace>/local")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "generate local configuration",
	Run: func(cmd *cobra.Command, args []string) {
		initDefaultConfig()
	},
}

func initDefaultConfig() {
	fmt.Printf("Workspace: %s\n", WorkSpace)
	if err := mkdir(WorkSpace); err != nil {
		fmt.Printf("init workspace failed: %s\n", err.Error())
		return
	}

	dataDir := localDir
	if dataDir == "" {
		dataDir = localDataDirPath(WorkSpace)
	}
	fmt.Printf("Workspace Data Dir: %s\n", dataDir)
	if err := mkdir(dataDir); err != nil {
		fmt.Printf("init workspace data dir failed: %s\n", err.Error())
		return
	}

	conf := config.DefaultConfig(WorkSpace, dataDir)
	for _, dir := range []string{conf.FUSE.RootPath, conf.Cache.Dir} {
		if err := mkdir(dir); err != nil {
			fmt.Printf("init dir %s failed: %s\n", dir, err.Error())
			return
		}
	}

	configPath := localConfigFilePath(WorkSpace)
	fmt.Printf("Workspace Config: %s\n", configPath)
	raw, _ := json.MarshalIndent(conf, "", "    ")
	if err := os.WriteFile(configPath, raw, 0600); err != nil {
		fmt.Printf("wirteback config file failed: %s\n", err.Error())
		return
	}
	fmt.Println("Generate local configuration succeed")
}
