package main

import (
	"log/slog"

	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/origin"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if lo.Contains(cfg.AllowedOrigins, origin.Wildcard) {
		logger.Warn("startup security warning: "+config.EnvAllowedOrigins+" contains '*' (any website can open signaling connections)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxParticipants <= 0 {
		logger.Warn("startup security warning: "+config.EnvMaxParticipants+" is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_participants_unlimited_in_prod",
			"max_participants", cfg.MaxParticipants,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: signaling message size cap is very large (SDP blobs are a few KiB; large caps increase per-message allocation risk)",
			"warning_code", "signaling_message_bytes_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}

	switch {
	case len(cfg.ICEServers) == 0:
		logger.Warn("startup warning: no ICE servers configured; browsers behind NAT may fail to connect (set "+config.EnvICEServersJSON+" or AERO_STUN_URLS)",
			"warning_code", "ice_servers_missing",
			"mode", cfg.Mode,
		)
	case cfg.Mode == config.ModeProd && !config.HasTURN(cfg.ICEServers):
		logger.Warn("startup warning: no TURN server configured while --mode=prod; peers behind symmetric NATs will not connect",
			"warning_code", "turn_missing_in_prod",
			"ice_servers", len(cfg.ICEServers),
			"mode", cfg.Mode,
		)
	}
}
