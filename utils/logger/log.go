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

package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.Logger
	root     *zap.SugaredLogger
	atom     = zap.NewAtomicLevel()
	initOnce sync.Once
)

// InitLogger builds the process-wide json logger writing to stdout.
// Calling it more than once is harmless.
func InitLogger() {
	initOnce.Do(func() {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder

		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stdout),
			atom,
		))
		root = logger.Sugar()
	})
}

func Sync() {
	if logger == nil {
		return
	}
	_ = logger.Sync()
}

// NewLogger returns a named child of the root logger. Packages that are
// used before InitLogger still get a working (no-op) logger.
func NewLogger(name string) *zap.SugaredLogger {
	if root == nil {
		return zap.NewNop().Sugar().Named(name)
	}
	return root.Named(name)
}

func SetDebug(enable bool) {
	if enable {
		atom.SetLevel(zap.DebugLevel)
		return
	}
	atom.SetLevel(zap.InfoLevel)
}

func IsDebug() bool {
	return atom.Enabled(zap.DebugLevel)
}
