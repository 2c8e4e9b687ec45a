package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"familypoints/database"
	"familypoints/models"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

var lookupSeq atomic.Int64

// SeededFamily is a family with one child holding an opened account
type SeededFamily struct {
	Family *models.Family
	Child  *models.Child
}

// SeedFamily inserts a family and a child with the given starting balance.
// The balance is written with a matching account_opening ledger entry so the
// ledger sum equals the balance.
func SeedFamily(t *testing.T, db *database.DB, balance int64) *SeededFamily {
	t.Helper()
	ctx := context.Background()
	seeded := &SeededFamily{
		Family: &models.Family{Name: "Test Family", LookupCode: fmt.Sprintf("TEST%04d", lookupSeq.Add(1))},
		Child:  &models.Child{Name: "Alex"},
	}

	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO families (name, lookup_code) VALUES ($1, $2) RETURNING id, created_at`,
			seeded.Family.Name, seeded.Family.LookupCode,
		).Scan(&seeded.Family.ID, &seeded.Family.CreatedAt); err != nil {
			return err
		}

		seeded.Child.FamilyID = seeded.Family.ID
		if err := tx.QueryRow(ctx,
			`INSERT INTO children (family_id, name) VALUES ($1, $2) RETURNING id, created_at`,
			seeded.Family.ID, seeded.Child.Name,
		).Scan(&seeded.Child.ID, &seeded.Child.CreatedAt); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO accounts (child_id, family_id, balance) VALUES ($1, $2, $3)`,
			seeded.Child.ID, seeded.Family.ID, balance,
		); err != nil {
			return err
		}

		if balance == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO ledger_entries (child_id, family_id, type, amount, balance_after, reference_type, reference_id)
			VALUES ($1, $2, $3, $4, $4, $5, $6)`,
			seeded.Child.ID, seeded.Family.ID, models.TransactionTypeInitial, balance,
			models.ReferenceTypeAccountOpening, fmt.Sprint(seeded.Child.ID),
		)
		return err
	})
	require.NoError(t, err)

	return seeded
}

// CreateTestTask builds a parent-approved task worth the given points
func CreateTestTask(familyID int64, points int64) *models.Task {
	return &models.Task{
		FamilyID:     familyID,
		Title:        "Make the bed",
		Points:       points,
		ApprovalType: models.ApprovalTypeParent,
		Checklist:    []string{},
		IsActive:     true,
	}
}

// CreateTestReward builds a standard reward with unlimited stock
func CreateTestReward(familyID int64, cost int64) *models.Reward {
	return &models.Reward{
		FamilyID:   familyID,
		Title:      "Ice cream",
		PointsCost: cost,
		RewardType: models.RewardTypeStandard,
		IsActive:   true,
	}
}

// CreateTestScreenTimeReward builds a screen-time reward granting the given minutes
func CreateTestScreenTimeReward(familyID int64, cost int64, minutes int) *models.Reward {
	reward := CreateTestReward(familyID, cost)
	reward.Title = "Tablet time"
	reward.RewardType = models.RewardTypeScreenTime
	reward.ScreenMinutes = minutes
	return reward
}

// CreateTestGoal builds a goal with the standard milestone bonuses
func CreateTestGoal(childID, familyID int64, target int64) *models.Goal {
	return &models.Goal{
		ChildID:             childID,
		FamilyID:            familyID,
		Title:               "New bike",
		TargetPoints:        target,
		MilestoneBonuses:    map[int]int64{25: 10, 50: 20, 75: 30},
		MilestonesCompleted: []int{},
	}
}
