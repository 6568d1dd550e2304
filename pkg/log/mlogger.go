// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
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
	"go.uber.org/zap"
)

// MLogger 是对 zap.Logger 的轻量包装，用于支持模块级 Logger 的链式派生。
type MLogger struct {
	*zap.Logger
}

// With 基于当前 MLogger 创建一个携带额外固定字段的子 Logger。
func (l *MLogger) With(fields ...zap.Field) *MLogger {
	return &MLogger{
		Logger: l.Logger.With(fields...),
	}
}

// WithName 为当前 MLogger 追加命名段，便于区分不同模块的输出。
func (l *MLogger) WithName(name string) *MLogger {
	return &MLogger{
		Logger: l.Logger.Named(name),
	}
}
