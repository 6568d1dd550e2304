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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

func TestPoolSubmit(t *testing.T) {
	pool := NewPool(4)
	defer pool.Release()

	var (
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			mu.Lock()
			total++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.Equal(t, 32, total)
}

func TestPoolNonBlockingOverload(t *testing.T) {
	pool := NewPool(1, WithNonBlocking(true))
	defer pool.Release()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	// 唯一的 worker 被占用，非阻塞模式下应立即拒绝。
	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, merr.ErrServiceTooManyRequests)

	close(block)
}

func TestPoolReleaseTimeout(t *testing.T) {
	pool := NewPool(2)

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		time.Sleep(50 * time.Millisecond)
		close(done)
	}))

	require.NoError(t, pool.ReleaseTimeout(time.Second))

	select {
	case <-done:
	default:
		t.Fatal("in-flight task should finish within the grace period")
	}
}
