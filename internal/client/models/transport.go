package models

import "strings"

// DeploymentMode tells which trust policy is acceptable for a build.
type DeploymentMode string

const (
	// DeploymentManaged talks to a shared backend and always uses the
	// platform trust store.
	DeploymentManaged DeploymentMode = "managed"
	// DeploymentSelfHosted lets an account opt in to accepting any
	// certificate (self-signed home servers).
	DeploymentSelfHosted DeploymentMode = "selfhosted"
)

// ParseDeploymentMode maps user input to a mode; anything unknown is managed.
func ParseDeploymentMode(s string) DeploymentMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "selfhosted", "self-hosted", "self_hosted":
		return DeploymentSelfHosted
	default:
		return DeploymentManaged
	}
}

// TransportPolicy is the TLS trust decision handed to storage providers.
type TransportPolicy string

const (
	TransportPlatformTrust TransportPolicy = "platform"
	TransportInsecure      TransportPolicy = "insecure"
)

// PolicyFor picks the transport policy for an account in a deployment mode.
// Insecure transport is only possible for self-hosted deployments whose
// account explicitly allows it.
func PolicyFor(mode DeploymentMode, cfg ServerConfig) TransportPolicy {
	if mode == DeploymentSelfHosted && cfg.AllowInsecureTLS {
		return TransportInsecure
	}
	return TransportPlatformTrust
}
