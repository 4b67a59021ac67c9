package core

import (
	"fmt"

	"sharerelay/client"
	"sharerelay/config"
	"sharerelay/util"
)

// Build constructs the Mode selected by cfg.Mode.  cfg must already be
// validated.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	switch cfg.Mode {
	case config.ModeServe:
		return &ServeMode{Config: cfg, Logger: logger}, nil
	case config.ModeShares:
		return &SharesMode{
			Options:  client.OptionsFrom(cfg, logger),
			Username: cfg.Client.Username,
			Logger:   logger,
		}, nil
	case config.ModeShare:
		return &ShareMode{
			Options:  client.OptionsFrom(cfg, logger),
			Username: cfg.Client.Username,
			Secret:   cfg.Client.Secret,
			Logger:   logger,
		}, nil
	case config.ModeView:
		return &ViewMode{
			Options:  client.OptionsFrom(cfg, logger),
			Username: cfg.Client.Username,
			Target:   cfg.Client.Target,
			Secret:   cfg.Client.Secret,
			Logger:   logger,
		}, nil
	case config.ModeInvite:
		return &InviteMode{
			Directory: cfg.Directory,
			Username:  cfg.Client.Username,
			Logger:    logger,
		}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
}
