package billing

import (
	"fmt"
	"strings"

	"github.com/arsound/arsound/internal/pkg/mercadopago"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// Resolution stages, in the order they are attempted.
const (
	StageMetadata  = "metadata"
	StageReference = "external_reference"
	StageItemID    = "item_id"
)

// ResolveIntent recovers what a payment was for. Metadata is tried first,
// then the external reference grammar, then the first item id carrying a plan
// key with a UUID found anywhere in the reference. It returns the stage that
// succeeded, or the last stage attempted with an error.
func ResolveIntent(p *mercadopago.Payment) (Intent, string, error) {
	if in, ok := intentFromMetadata(p.Metadata); ok {
		return in, StageMetadata, nil
	}

	in, refErr := ParseReference(p.ExternalReference)
	if refErr == nil {
		return in, StageReference, nil
	}

	if in, ok := intentFromItemID(p.FirstItemID(), p.ExternalReference); ok {
		return in, StageItemID, nil
	}

	return Intent{}, StageItemID, fmt.Errorf("no intent in metadata, reference %q or item %q: %w",
		p.ExternalReference, p.FirstItemID(), refErr)
}

func intentFromMetadata(md map[string]any) (Intent, bool) {
	if len(md) == 0 {
		return Intent{}, false
	}
	switch metadataString(md, "type") {
	case MetadataTypePack:
		buyer, pack := metadataString(md, "buyer_id"), metadataString(md, "pack_id")
		if !isCanonicalUUID(buyer) || pack == "" {
			return Intent{}, false
		}
		return Intent{Kind: IntentPack, ActorID: strings.ToLower(buyer), PackID: pack}, true
	case MetadataTypePlan:
		user, plan := metadataString(md, "user_id"), metadataString(md, "plan_type")
		if !isCanonicalUUID(user) || plan == "" {
			return Intent{}, false
		}
		return Intent{Kind: IntentPlan, ActorID: strings.ToLower(user), PlanKey: plans.Normalize(plan)}, true
	default:
		return Intent{}, false
	}
}

// intentFromItemID handles references that lost their structure but still
// carry the subscriber id, with plan item ids such as "plan_tier1_monthly".
func intentFromItemID(itemID, ref string) (Intent, bool) {
	key := plans.Normalize(itemID)
	var plan plans.Plan
	for _, candidate := range []plans.Plan{plans.PlanTier2, plans.PlanTier1, plans.PlanFree} {
		if strings.HasSuffix(key, string(candidate)) {
			plan = candidate
			break
		}
	}
	if plan == "" {
		return Intent{}, false
	}
	user, ok := FindUUID(ref)
	if !ok {
		return Intent{}, false
	}
	return Intent{Kind: IntentPlan, ActorID: user, PlanKey: string(plan)}, true
}
