// Package version 提供启动阶段的版本自检能力。
//
// 服务启动时会尝试访问发布端点获取最新版本号，并与本地构建版本比较；
// 网络失败只产生告警日志，绝不阻止服务启动。
package version

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blang/semver/v4"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-harbor-go/pkg/log"
)

// Current 为当前构建的版本号，由构建脚本通过 -ldflags 注入。
var Current = "0.1.0"

const fetchTimeout = 5 * time.Second

// releaseInfo 为发布端点返回的最小负载。
type releaseInfo struct {
	Version string `json:"version"`
}

// Check 查询 endpoint 上的最新发布版本并与 Current 比较。
//
// 返回值：
//   - outdated：true 表示存在更新版本；
//   - latest  ：端点报告的最新版本号；
//   - err     ：获取或解析失败时的错误。
func Check(ctx context.Context, endpoint string) (outdated bool, latest string, err error) {
	current, err := semver.ParseTolerant(Current)
	if err != nil {
		return false, "", errors.Wrapf(err, "malformed build version %q", Current)
	}

	var info releaseInfo
	fetch := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errors.Newf("release endpoint returned status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &info); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(fetch, policy); err != nil {
		return false, "", err
	}

	latestVer, err := semver.ParseTolerant(strings.TrimSpace(info.Version))
	if err != nil {
		return false, "", errors.Wrapf(err, "malformed release version %q", info.Version)
	}

	return latestVer.GT(current), latestVer.String(), nil
}

// CheckAndLog 执行版本检查并将结果写入日志，供启动流程调用。
func CheckAndLog(ctx context.Context, endpoint string) {
	if endpoint == "" {
		return
	}

	outdated, latest, err := Check(ctx, endpoint)
	if err != nil {
		log.Warn("version check failed", zap.String("endpoint", endpoint), zap.Error(err))
		return
	}
	if outdated {
		log.Warn("a newer release is available",
			zap.String("current", Current),
			zap.String("latest", latest))
		return
	}
	log.Info("running latest release", zap.String("version", Current))
}
