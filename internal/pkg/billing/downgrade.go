package billing

import (
	"context"
	"time"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// DowngradeHandler archives listings a user can no longer keep after moving
// to a lower plan, and brings them back after moving up again.
type DowngradeHandler struct {
	plans *plans.Registry
	now   func() time.Time
}

func NewDowngradeHandler(registry *plans.Registry) *DowngradeHandler {
	return &DowngradeHandler{plans: registry, now: time.Now}
}

// Downgrade keeps the newest RetainOnDowngrade live packs of the target plan
// and archives the rest. It returns the archived ids. The caller passes the
// transaction repository so archiving commits together with the plan change.
func (h *DowngradeHandler) Downgrade(ctx context.Context, tx Repository, userID string, from, to plans.Plan) ([]string, error) {
	if !plans.IsDowngrade(from, to) {
		return nil, nil
	}
	keep := h.plans.Limits(string(to)).RetainOnDowngrade
	if keep == 0 {
		return nil, nil
	}

	packs, err := tx.ListLivePacks(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(packs) <= keep {
		return nil, nil
	}

	ids := packIDs(packs[keep:])
	if err := tx.ArchivePacks(ctx, ids, models.ArchivedReasonDowngrade, h.now()); err != nil {
		return nil, err
	}
	return ids, nil
}

// Restore un-archives packs that a downgrade archived, newest first, until
// the user holds as many live packs as the new plan retains. Packs the owner
// archived by hand stay archived.
func (h *DowngradeHandler) Restore(ctx context.Context, tx Repository, userID string, to plans.Plan) ([]string, error) {
	archived, err := tx.ListDowngradeArchived(ctx, userID)
	if err != nil || len(archived) == 0 {
		return nil, err
	}

	room := len(archived)
	if keep := h.plans.Limits(string(to)).RetainOnDowngrade; keep > 0 {
		live, err := tx.ListLivePacks(ctx, userID)
		if err != nil {
			return nil, err
		}
		room = keep - len(live)
	}
	if room <= 0 {
		return nil, nil
	}
	if room > len(archived) {
		room = len(archived)
	}

	ids := packIDs(archived[:room])
	if err := tx.UnarchivePacks(ctx, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func packIDs(packs []models.Pack) []string {
	ids := make([]string, len(packs))
	for i, p := range packs {
		ids[i] = p.ID
	}
	return ids
}
