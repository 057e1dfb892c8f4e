package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func runCLI(args ...string) int {
	return execute(context.Background(), args)
}

// writeDatabaseConfig 生成一个把缓存根目录与源文件都放在临时目录的配置。
func writeDatabaseConfig(t *testing.T, cacheRoot, origin string) string {
	t.Helper()
	return writeConfigFile(t, fmt.Sprintf(`
LogLevel = "debug"
CacheRoot = '%s'
CopyAttempts = 1
RetryBackoff = "1ms"

[[Database]]
Name = "inventario"
Origin = '%s'
`, cacheRoot, origin))
}

func TestConfigPathFromEnv(t *testing.T) {
	useBufferWriters(t)
	t.Setenv("DBCACHE_CONFIG", configFixture(t, "missing.toml"))
	if code := runCLI("check-config"); code == 0 {
		t.Fatalf("应使用 DBCACHE_CONFIG 指向的无效配置并失败")
	}

	useBufferWriters(t)
	if code := runCLI("--config", configFixture(t, "valid.toml"), "check-config"); code != 0 {
		t.Fatalf("flag 应高于环境变量，得到退出码 %d: %s", code, stdErrBuffer().String())
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := runCLI("--config", configFixture(t, "valid.toml"), "check-config")
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d: %s", code, stdErrBuffer().String())
	}
	if !strings.Contains(stdErrBuffer().String(), "配置校验通过") {
		t.Fatalf("日志应包含校验结果: %s", stdErrBuffer().String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := runCLI("--config", configFixture(t, "missing.toml"), "check-config")
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "Origin") {
		t.Fatalf("错误信息应指出缺失字段: %s", stdErrBuffer().String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := runCLI("version")
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "dbcache") {
		t.Fatalf("version 输出应包含 dbcache 标识")
	}
}

func TestRunClassify(t *testing.T) {
	useBufferWriters(t)
	if code := runCLI("classify", `\\fileserver\dados\Inventario.mdf`); code != 0 {
		t.Fatalf("classify 应成功，得到 %d", code)
	}
	if got := strings.TrimSpace(stdOutBuffer().String()); got != "network" {
		t.Fatalf("UNC 路径应判定为 network，得到 %s", got)
	}

	useBufferWriters(t)
	if code := runCLI("classify", t.TempDir()); code != 0 {
		t.Fatalf("classify 应成功，得到 %d", code)
	}
	if got := strings.TrimSpace(stdOutBuffer().String()); got != "local" {
		t.Fatalf("临时目录应判定为 local，得到 %s", got)
	}
}

func TestRunRequiresArgument(t *testing.T) {
	useBufferWriters(t)
	if code := runCLI("pull"); code == 0 {
		t.Fatalf("缺少参数时应失败")
	}
}

func TestRunPullThenPush(t *testing.T) {
	dir := t.TempDir()
	origin := filepath.Join(dir, "share", "Inventario.mdf")
	if err := os.MkdirAll(filepath.Dir(origin), 0o755); err != nil {
		t.Fatalf("创建源目录失败: %v", err)
	}
	if err := os.WriteFile(origin, []byte("v1"), 0o644); err != nil {
		t.Fatalf("写入源文件失败: %v", err)
	}
	configPath := writeDatabaseConfig(t, filepath.Join(dir, "cache"), origin)

	useBufferWriters(t)
	if code := runCLI("--config", configPath, "pull", "inventario"); code != 0 {
		t.Fatalf("pull 应成功，得到 %d: %s", code, stdErrBuffer().String())
	}
	cachePath := strings.TrimSpace(stdOutBuffer().String())
	if !strings.HasPrefix(cachePath, filepath.Join(dir, "cache")) {
		t.Fatalf("缓存路径应位于缓存根目录下，得到 %s", cachePath)
	}
	data, err := os.ReadFile(cachePath)
	if err != nil || string(data) != "v1" {
		t.Fatalf("缓存内容不符: %q, %v", data, err)
	}
	if !strings.Contains(stdErrBuffer().String(), "op_id") {
		t.Fatalf("操作日志应带 op_id: %s", stdErrBuffer().String())
	}

	if err := os.WriteFile(cachePath, []byte("v2"), 0o644); err != nil {
		t.Fatalf("修改缓存失败: %v", err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(cachePath, later, later); err != nil {
		t.Fatalf("设置缓存时间失败: %v", err)
	}

	useBufferWriters(t)
	if code := runCLI("--config", configPath, "push", "inventario"); code != 0 {
		t.Fatalf("push 应成功，得到 %d: %s", code, stdErrBuffer().String())
	}
	if got := strings.TrimSpace(stdOutBuffer().String()); got != "pushed" {
		t.Fatalf("push 结果应为 pushed，得到 %s", got)
	}
	data, err = os.ReadFile(origin)
	if err != nil || string(data) != "v2" {
		t.Fatalf("源文件应被回写: %q, %v", data, err)
	}
}

func TestRunPushWithoutCacheIsSkipped(t *testing.T) {
	dir := t.TempDir()
	origin := filepath.Join(dir, "Inventario.mdf")
	configPath := writeDatabaseConfig(t, filepath.Join(dir, "cache"), origin)

	useBufferWriters(t)
	if code := runCLI("--config", configPath, "push", origin); code != 0 {
		t.Fatalf("没有缓存时 push 应跳过而不是失败，得到 %d", code)
	}
	if got := strings.TrimSpace(stdOutBuffer().String()); got != "skipped" {
		t.Fatalf("push 结果应为 skipped，得到 %s", got)
	}
}

func TestRunStatusReportsJSON(t *testing.T) {
	dir := t.TempDir()
	origin := filepath.Join(dir, "Inventario.mdf")
	if err := os.WriteFile(origin, []byte("v1"), 0o644); err != nil {
		t.Fatalf("写入源文件失败: %v", err)
	}
	configPath := writeDatabaseConfig(t, filepath.Join(dir, "cache"), origin)

	useBufferWriters(t)
	if code := runCLI("--config", configPath, "status", "inventario"); code != 0 {
		t.Fatalf("status 应成功，得到 %d: %s", code, stdErrBuffer().String())
	}

	var status struct {
		Origin struct {
			Exists bool `json:"exists"`
		} `json:"origin"`
		Cache struct {
			Exists bool `json:"exists"`
		} `json:"cache"`
		Stale bool `json:"stale"`
	}
	if err := json.Unmarshal(stdOutBuffer().Bytes(), &status); err != nil {
		t.Fatalf("status 输出应为 JSON: %v", err)
	}
	if !status.Origin.Exists || status.Cache.Exists || !status.Stale {
		t.Fatalf("尚未拉取时应报告源存在且缓存过期: %+v", status)
	}
}

func TestRunOpenVerifiesCache(t *testing.T) {
	dir := t.TempDir()
	origin := filepath.Join(dir, "share", "Novo.mdf")
	if err := os.MkdirAll(filepath.Dir(origin), 0o755); err != nil {
		t.Fatalf("创建源目录失败: %v", err)
	}
	// 空文件对 sqlite 来说是一个合法的空库
	if err := os.WriteFile(origin, nil, 0o644); err != nil {
		t.Fatalf("写入源文件失败: %v", err)
	}
	configPath := writeDatabaseConfig(t, filepath.Join(dir, "cache"), origin)

	useBufferWriters(t)
	if code := runCLI("--config", configPath, "open", origin); code != 0 {
		t.Fatalf("open 应成功，得到 %d: %s", code, stdErrBuffer().String())
	}
	cachePath := strings.TrimSpace(stdOutBuffer().String())
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("open 后缓存文件应存在: %v", err)
	}
}

func TestRunPullMissingOriginFails(t *testing.T) {
	dir := t.TempDir()
	origin := filepath.Join(dir, "share", "Ausente.mdf")
	configPath := writeDatabaseConfig(t, filepath.Join(dir, "cache"), origin)

	useBufferWriters(t)
	if code := runCLI("--config", configPath, "pull", origin); code == 0 {
		t.Fatalf("源主文件不存在时 pull 应失败")
	}
	if stdOutBuffer().Len() != 0 {
		t.Fatalf("失败时不应输出缓存路径: %s", stdOutBuffer().String())
	}
}
