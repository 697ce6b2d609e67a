package billing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/arsound/arsound/internal/pkg/plans"
	"github.com/google/uuid"
)

// IntentKind distinguishes what a payment was for.
type IntentKind string

const (
	IntentPack IntentKind = "pack"
	IntentPlan IntentKind = "plan"
)

// Intent is the typed purchase intent behind a payment. ActorID is the buyer
// for packs and the subscriber for plans.
type Intent struct {
	Kind    IntentKind
	ActorID string
	PackID  string
	PlanKey string
}

var (
	ErrMalformedReference = errors.New("malformed external reference")

	uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
)

// BuildReference renders an intent as "pack_{buyer}_{pack}" or
// "plan_{user}_{planKey}".
func BuildReference(in Intent) (string, error) {
	if !isCanonicalUUID(in.ActorID) {
		return "", fmt.Errorf("%w: actor id %q is not a uuid", ErrMalformedReference, in.ActorID)
	}
	switch in.Kind {
	case IntentPack:
		if in.PackID == "" {
			return "", fmt.Errorf("%w: missing pack id", ErrMalformedReference)
		}
		return fmt.Sprintf("pack_%s_%s", in.ActorID, in.PackID), nil
	case IntentPlan:
		if in.PlanKey == "" {
			return "", fmt.Errorf("%w: missing plan key", ErrMalformedReference)
		}
		return fmt.Sprintf("plan_%s_%s", in.ActorID, in.PlanKey), nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrMalformedReference, in.Kind)
	}
}

// ParseReference recovers an intent from an external reference. It does not
// assume a fixed field count: it slides over the "_" separated segments until
// one is a canonical UUID, and treats everything after it as the entity. Plan keys
// are normalized, so "tier1_monthly" comes back as "tier1".
func ParseReference(ref string) (Intent, error) {
	segments := strings.Split(strings.TrimSpace(ref), "_")
	if len(segments) < 3 {
		return Intent{}, fmt.Errorf("%w: %q", ErrMalformedReference, ref)
	}

	kind := IntentKind(strings.ToLower(segments[0]))
	if kind != IntentPack && kind != IntentPlan {
		return Intent{}, fmt.Errorf("%w: unknown prefix in %q", ErrMalformedReference, ref)
	}

	rest := segments[1:]
	for i := range rest {
		for j := i; j < len(rest); j++ {
			candidate := strings.Join(rest[i:j+1], "_")
			if !isCanonicalUUID(candidate) {
				continue
			}
			entity := strings.Join(rest[j+1:], "_")
			if entity == "" {
				return Intent{}, fmt.Errorf("%w: no entity in %q", ErrMalformedReference, ref)
			}
			out := Intent{Kind: kind, ActorID: strings.ToLower(candidate)}
			if kind == IntentPack {
				out.PackID = entity
			} else {
				out.PlanKey = plans.Normalize(entity)
			}
			return out, nil
		}
	}
	return Intent{}, fmt.Errorf("%w: no uuid in %q", ErrMalformedReference, ref)
}

// FindUUID returns the first canonical UUID anywhere in s.
func FindUUID(s string) (string, bool) {
	m := uuidPattern.FindString(s)
	if m == "" {
		return "", false
	}
	return strings.ToLower(m), true
}

func isCanonicalUUID(s string) bool {
	if len(s) != 36 || !uuidPattern.MatchString(s) {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
