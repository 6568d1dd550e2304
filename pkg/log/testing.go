// Copyright 2021 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// testingWriter 将日志输出转发到 testing.T，供单元测试使用。
type testingWriter struct {
	t          zaptest.TestingT
	markFailed bool
}

func newTestingWriter(t zaptest.TestingT) testingWriter {
	return testingWriter{t: t}
}

// WithMarkFailed 返回一个新的 testingWriter 副本，并设置 markFailed 标志。
func (w testingWriter) WithMarkFailed(v bool) testingWriter {
	w.markFailed = v
	return w
}

func (w testingWriter) Write(p []byte) (n int, err error) {
	n = len(p)

	// 去掉末尾换行符，因为 t.Log 会自动追加一个换行。
	p = bytes.TrimRight(p, "\n")

	// 注意：t.Log 在并发场景下是安全的。
	w.t.Logf("%s", p)
	if w.markFailed {
		w.t.Fail()
	}

	return n, nil
}

func (w testingWriter) Sync() error {
	return nil
}

// InitTestLogger 初始化一个面向单元测试的 Logger，输出重定向到 t.Log。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	writer := newTestingWriter(t)
	zapOptions := []zap.Option{
		// zap 内部错误同样写到测试输出，并将测试标记为失败。
		zap.ErrorOutput(writer.WithMarkFailed(true)),
	}
	opts = append(zapOptions, opts...)
	return InitLoggerWithWriteSyncer(cfg, writer, opts...)
}

// SetupTestLogger 将全局 Logger 替换为测试 Logger，返回恢复函数。
func SetupTestLogger(t zaptest.TestingT) func() {
	oldL := L()
	oldP := _globalP.Load().(*ZapProperties)

	lg, props, err := InitTestLogger(t, &Config{Level: "debug", Format: "text", DisableCaller: true})
	if err != nil {
		panic(err)
	}
	ReplaceGlobals(lg, props)

	return func() {
		ReplaceGlobals(oldL, oldP)
	}
}
