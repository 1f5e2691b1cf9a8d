package domain

import (
	"fmt"
	"strings"
)

// InitStage is one trust-establishment stage. Stages combine as a bit set.
type InitStage uint16

const (
	// StageBasicData: the enclave is provisioned and its measurement known.
	StageBasicData InitStage = 1 << iota
	// StagePolicyKey: the policy certificate is loaded.
	StagePolicyKey
	// StageAuthKey: the authentication key exists.
	StageAuthKey
	// StageServiceKey: the attestation service key exists.
	StageServiceKey
	// StageSymmetricKey: the sealing/protection key exists.
	StageSymmetricKey
	// StagePrimaryCertified: the primary domain issued an admission certificate.
	StagePrimaryCertified
	// StageSecondaryCertified: every registered secondary domain is certified.
	StageSecondaryCertified
)

var stageNames = []struct {
	stage InitStage
	name  string
}{
	{StageBasicData, "basic-data"},
	{StagePolicyKey, "policy-key"},
	{StageAuthKey, "auth-key"},
	{StageServiceKey, "service-key"},
	{StageSymmetricKey, "symmetric-key"},
	{StagePrimaryCertified, "primary-certified"},
	{StageSecondaryCertified, "secondary-certified"},
}

// InitStages is a set of completed stages.
type InitStages uint16

// Has reports whether every stage in want is set.
func (s InitStages) Has(want InitStages) bool {
	return s&want == want
}

// With returns s with stage added.
func (s InitStages) With(stage InitStage) InitStages {
	return s | InitStages(stage)
}

// Without returns s with stage removed.
func (s InitStages) Without(stage InitStage) InitStages {
	return s &^ InitStages(stage)
}

// Missing returns the stages in want that are not in s.
func (s InitStages) Missing(want InitStages) InitStages {
	return want &^ s
}

// Stages returns the set as a slice, in stage order.
func (s InitStages) Stages() []InitStage {
	var out []InitStage
	for _, sn := range stageNames {
		if s&InitStages(sn.stage) != 0 {
			out = append(out, sn.stage)
		}
	}
	return out
}

func (s InitStages) String() string {
	if s == 0 {
		return "none"
	}
	names := make([]string, 0, len(stageNames))
	for _, st := range s.Stages() {
		names = append(names, st.String())
	}
	return strings.Join(names, ",")
}

func (s InitStage) String() string {
	for _, sn := range stageNames {
		if sn.stage == s {
			return sn.name
		}
	}
	return fmt.Sprintf("stage(%d)", uint16(s))
}

// ParseStage parses a stage name as printed by InitStage.String.
func ParseStage(name string) (InitStage, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, sn := range stageNames {
		if sn.name == n {
			return sn.stage, nil
		}
	}
	return 0, fmt.Errorf("unknown initialization stage %q", name)
}

// ParseStages parses a list of stage names into a set.
func ParseStages(names []string) (InitStages, error) {
	var s InitStages
	for _, n := range names {
		st, err := ParseStage(n)
		if err != nil {
			return 0, err
		}
		s = s.With(st)
	}
	return s, nil
}

// Purpose selects what the node is certified for.
type Purpose string

const (
	// PurposeAuthentication nodes authenticate to peers with an admission cert.
	PurposeAuthentication Purpose = "authentication"
	// PurposeAttestation nodes run an attestation service.
	PurposeAttestation Purpose = "attestation"
)

// ParsePurpose parses a purpose name. The empty string selects
// PurposeAuthentication.
func ParsePurpose(s string) (Purpose, error) {
	switch Purpose(strings.ToLower(strings.TrimSpace(s))) {
	case "", PurposeAuthentication:
		return PurposeAuthentication, nil
	case PurposeAttestation:
		return PurposeAttestation, nil
	default:
		return "", fmt.Errorf("unknown purpose %q", s)
	}
}

// RequiredStages returns the stages that must complete before a node with
// this purpose is fully initialized.
func (p Purpose) RequiredStages(requireSecondary bool) InitStages {
	var s InitStages
	s = s.With(StageBasicData).With(StagePolicyKey).With(StageSymmetricKey).With(StagePrimaryCertified)
	if p == PurposeAttestation {
		s = s.With(StageServiceKey)
	} else {
		s = s.With(StageAuthKey)
	}
	if requireSecondary {
		s = s.With(StageSecondaryCertified)
	}
	return s
}

// KeyTag returns the policy store tag of the purpose's identity key.
func (p Purpose) KeyTag() string {
	if p == PurposeAttestation {
		return TagServiceKey
	}
	return TagAuthKey
}

// KeyStage returns the stage recorded when the purpose's identity key exists.
func (p Purpose) KeyStage() InitStage {
	if p == PurposeAttestation {
		return StageServiceKey
	}
	return StageAuthKey
}
