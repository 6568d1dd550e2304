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

package conc

import (
	"time"

	ants "github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// Pool 是对 ants.Pool 的薄封装，提供项目内统一的有界协程池抽象。
//
// 约定：
//   - Submit 在池满且配置为非阻塞时返回 merr.ErrServiceTooManyRequests，
//     由调用方决定排队、拒绝或降级；
//   - Release/ReleaseTimeout 幂等，可在优雅停机时多次调用。
type Pool struct {
	inner *ants.Pool
}

// NewPool 创建一个容量为 cap 的协程池。
func NewPool(cap int, opts ...PoolOption) *Pool {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		// 仅当容量等参数非法时才会失败，属于编码错误。
		panic(err)
	}

	return &Pool{inner: pool}
}

// Submit 向池中提交一个任务。
//
// 池满时的行为取决于创建选项：
//   - 阻塞模式（默认）：等待空闲 worker；
//   - 非阻塞模式：立即返回 merr.ErrServiceTooManyRequests。
func (p *Pool) Submit(task func()) error {
	err := p.inner.Submit(task)
	if err == ants.ErrPoolOverload {
		return merr.ErrServiceTooManyRequests
	}
	if err == ants.ErrPoolClosed {
		return merr.ErrServiceUnavailable
	}
	return err
}

// Running 返回当前正在执行任务的 worker 数量。
func (p *Pool) Running() int {
	return p.inner.Running()
}

// Free 返回当前空闲的 worker 数量。
func (p *Pool) Free() int {
	return p.inner.Free()
}

// Cap 返回池容量。
func (p *Pool) Cap() int {
	return p.inner.Cap()
}

// Release 立即关闭池，不再接受新任务。
func (p *Pool) Release() {
	p.inner.Release()
}

// ReleaseTimeout 关闭池并等待在执行中的任务结束，最多等待 timeout。
// 超时后池被强制关闭，剩余任务的协程由进程退出时回收。
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	return p.inner.ReleaseTimeout(timeout)
}
