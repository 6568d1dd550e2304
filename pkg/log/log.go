// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger 根据给定配置初始化一个 zap Logger。
//
// 输出目标由配置决定：
//   - File.Filename 非空时输出到滚动日志文件（lumberjack）；
//   - Stdout 为 true 时输出到标准输出；
//   - 两者都未开启时，日志被丢弃。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if len(cfg.File.Filename) > 0 {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout {
		stdOut, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdOut)
	}

	var syncer zapcore.WriteSyncer
	if len(outputs) == 0 {
		syncer = zapcore.AddSync(os.NewFile(0, os.DevNull))
	} else {
		syncer = zap.CombineWriteSyncers(outputs...)
	}

	return InitLoggerWithWriteSyncer(cfg, syncer, opts...)
}

// InitLoggerWithWriteSyncer 使用指定的 WriteSyncer 初始化 zap Logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, errors.Wrapf(err, "unrecognized log level %q", cfg.Level)
	}

	core := zapcore.NewCore(cfg.buildEncoder(), output, level)
	opts = append(cfg.buildOptions(output), opts...)
	lg := zap.New(core, opts...)
	r := &ZapProperties{
		Core:   core,
		Syncer: output,
		Level:  level,
	}
	return lg, r, nil
}

// initFileLog 初始化基于 lumberjack 的文件日志输出。
func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	fileName := cfg.Filename
	if cfg.RootPath != "" {
		fileName = filepath.Join(cfg.RootPath, fileName)
	}
	if st, err := os.Stat(fileName); err == nil {
		if st.IsDir() {
			return nil, errors.New("can't use directory as log file name")
		}
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}

	return &lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

// newStdLogger 创建进程启动早期使用的缺省 Logger（text 格式，输出到 stdout）。
func newStdLogger() (*zap.Logger, *ZapProperties) {
	cfg := &Config{Level: "info", Format: "text"}
	lg, r, _ := InitLoggerWithWriteSyncer(cfg, zapcore.AddSync(os.Stdout), zap.AddCallerSkip(1))
	return lg, r
}
