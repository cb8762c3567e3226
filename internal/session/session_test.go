package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/omnisync/internal/config"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "acme-sales", false},
		{"valid with underscore", "acme_support", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "my/profile", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	base := t.TempDir()
	t.Setenv(EnvHome, base)

	if got, want := Dir("main"), filepath.Join(base, "profiles", "main"); got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
	if got := SocketPath("w"); !strings.HasSuffix(got, filepath.Join("profiles", "w", "daemon.sock")) {
		t.Errorf("SocketPath(w) = %q", got)
	}
	if got := LockPath("w"); !strings.HasSuffix(got, filepath.Join("profiles", "w", "LOCK")) {
		t.Errorf("LockPath(w) = %q", got)
	}
	if got := LogPath("w", "omnisyncd"); !strings.HasSuffix(got, filepath.Join("w", "logs", "omnisyncd.log")) {
		t.Errorf("LogPath(w) = %q", got)
	}
	if got, want := ConfigPath(), filepath.Join(base, "config.toml"); got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() || info.Mode().Perm() != 0700 {
		t.Errorf("log dir mode = %v", info.Mode())
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	if got := Resolve(""); got != DefaultProfile {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultProfile)
	}
	if err := config.Save(ConfigPath(), &config.Config{DefaultProfile: "sales"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "sales" {
		t.Errorf("Resolve() = %q, want sales", got)
	}
	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q, want flag", got)
	}
}
