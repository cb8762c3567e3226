// Package session names and locates profiles: one CRM account per profile,
// each with its own daemon lock, control socket and logs.
package session

import "github.com/matheus3301/omnisync/internal/config"

const DefaultProfile = "main"

// Resolve determines the active profile using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultProfile
}
