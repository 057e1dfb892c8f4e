package config

import "testing"

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(fixturePath("missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadFailsWithMissingFile(t *testing.T) {
	if _, err := Load(fixturePath("absent.toml")); err == nil {
		t.Fatalf("配置文件不存在时应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
CacheRoot = "./cache"
RetryBackoff = "boom"

[[Database]]
Name = "inventario"
Origin = "/mnt/share/Inventario.mdf"
`
	path := writeTOML(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadNormalizesCompanionExt(t *testing.T) {
	cfg := `
CacheRoot = "./cache"
CompanionExt = "log"
`
	loaded, err := Load(writeTOML(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.CompanionExt != ".log" {
		t.Fatalf("CompanionExt 应补全前导点，得到 %s", loaded.Global.CompanionExt)
	}
}
