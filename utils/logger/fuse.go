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
	"bytes"
	"log"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	defaultFuseLoggerBuf = 1024
	fuseLogMessageDelim  = '\n'
)

// NewFuseLogger adapts the std logger expected by go-fuse onto zap.
func NewFuseLogger() *log.Logger {
	adp := &fuseLogAdaptor{
		b: bytes.NewBuffer(make([]byte, 0, defaultFuseLoggerBuf)),
		l: NewLogger("fuse.server"),
	}
	return log.New(adp, "", 0)
}

type fuseLogAdaptor struct {
	b   *bytes.Buffer
	l   *zap.SugaredLogger
	mux sync.Mutex
}

func (f *fuseLogAdaptor) Write(p []byte) (n int, err error) {
	f.mux.Lock()
	defer f.mux.Unlock()

	n, err = f.b.Write(p)
	if n == 0 {
		return
	}
	for bytes.IndexByte(f.b.Bytes(), fuseLogMessageDelim) >= 0 {
		f.logLine()
	}
	return
}

func (f *fuseLogAdaptor) logLine() {
	line, logErr := f.b.ReadString(fuseLogMessageDelim)
	if logErr != nil {
		f.l.Errorf("read log buf failed: %s", logErr.Error())
		return
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	f.l.Debug(line)
}
