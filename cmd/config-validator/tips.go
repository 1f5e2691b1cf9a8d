package main

import (
	stderrors "errors"

	"github.com/sufield/certifier/internal/core/errors"
)

// getProductionTips maps production readiness errors to remediation hints.
func getProductionTips(err error) []string {
	var tips []string

	if stderrors.Is(err, errors.ErrSimulatedEnclave) {
		tips = append(tips, "Set CERTIFIER_NODE_ENCLAVE_TYPE to the hardware enclave of the node (sev-enclave, gramine-enclave, oe-enclave)")
	}
	if stderrors.Is(err, errors.ErrRelativeStorePath) {
		tips = append(tips, "Set CERTIFIER_NODE_STORE_PATH to an absolute path such as '/var/lib/certifier/policy_store'")
	}
	if stderrors.Is(err, errors.ErrNoPrimaryDomain) {
		tips = append(tips, "Configure primary_domain with its admission and service endpoints")
	}
	if stderrors.Is(err, errors.ErrMissingPolicyCert) {
		tips = append(tips, "Set policy_cert_file for every domain to the DER policy certificate issued by its operator")
	}
	if stderrors.Is(err, errors.ErrVerboseLogging) {
		tips = append(tips, "Set CERTIFIER_LOG_LEVEL to 'info' or 'warn' for production (not debug)")
	}
	if stderrors.Is(err, errors.ErrPublicMetrics) {
		tips = append(tips, "Bind CERTIFIER_METRICS_ADDRESS to localhost or a private interface")
	}

	return tips
}

// getSecurityRecommendations returns general hardening advice.
func getSecurityRecommendations(envOnly bool) []string {
	var recommendations []string

	if !envOnly {
		recommendations = append(recommendations, "Keep the config file readable by the node user only (mode 0600)")
	}
	recommendations = append(recommendations,
		"Keep node.platform_key_file and the policy store on storage only this node can read",
		"Distribute domain policy certificates out of band and verify their fingerprints",
		"Run certifier-cli warm-restart after a reboot instead of cold-init to keep admission certificates",
	)
	return recommendations
}
