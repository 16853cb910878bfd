package api

import (
	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/internal/config"
)

// Services bundles every resource module over one backend client.
type Services struct {
	Types     *PlatformTypes
	Groups    *PlatformGroups
	Platforms *Platforms
	Auth      *Auth
	Matching  *Matching
}

// NewServices wires all modules to c.
func NewServices(c *backend.Client, cfg config.BackendConfig) *Services {
	return &Services{
		Types:     NewPlatformTypes(c),
		Groups:    NewPlatformGroups(c),
		Platforms: NewPlatforms(c),
		Auth:      NewAuth(c, cfg.ProbePath),
		Matching:  NewMatching(c, cfg.Matching),
	}
}
