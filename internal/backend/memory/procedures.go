package memory

import (
	"fmt"

	"studygenie/internal/backend"
)

// Procedure names shared with the hosted backend schema.
const (
	ProcUpdateUserProgress = "update_user_progress"
	ProcCheckAchievements  = "check_achievements"
)

// updateUserProgress adds xp_to_add to the profile of user_uuid.
func updateUserProgress(tx *Tx, args map[string]any) error {
	userID := backend.Row(args).String("user_uuid")
	if userID == "" {
		return backend.Reject("user_uuid is required", nil)
	}
	delta := backend.Row(args).Int64("xp_to_add")
	for _, row := range tx.d.collections["user_profiles"] {
		if row.String("id") != userID {
			continue
		}
		row["xp_points"] = row.Int64("xp_points") + delta
		row["updated_at"] = tx.Now()
		return nil
	}
	return backend.NotFound(fmt.Sprintf("profile %s not found", userID))
}
