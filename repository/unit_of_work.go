package repository

import (
	"context"
	"errors"
	"fmt"

	"familypoints/database"
	"familypoints/events"
	"familypoints/service"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db                 *database.DB
	tx                 pgx.Tx
	ctx                context.Context
	transactionalBus   *events.TransactionalBus
	familyRepo         service.FamilyRepository
	accountRepo        service.AccountRepository
	ledgerRepo         service.LedgerRepository
	taskRepo           service.TaskRepository
	taskCompletionRepo service.TaskCompletionRepository
	rewardRepo         service.RewardRepository
	rewardPurchaseRepo service.RewardPurchaseRepository
	goalRepo           service.GoalRepository
	screenTimeRepo     service.ScreenTimeRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.familyRepo = newFamilyRepositoryWithTx(tx)
	u.accountRepo = newAccountRepositoryWithTx(tx)
	u.ledgerRepo = newLedgerRepositoryWithTx(tx)
	u.taskRepo = newTaskRepositoryWithTx(tx)
	u.taskCompletionRepo = newTaskCompletionRepositoryWithTx(tx)
	u.rewardRepo = newRewardRepositoryWithTx(tx)
	u.rewardPurchaseRepo = newRewardPurchaseRepositoryWithTx(tx)
	u.goalRepo = newGoalRepositoryWithTx(tx)
	u.screenTimeRepo = newScreenTimeRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	// Discard pending events on rollback
	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

func notStarted() {
	panic("unit of work not started - call Begin() first")
}

// FamilyRepository returns the family repository for this unit of work
func (u *unitOfWork) FamilyRepository() service.FamilyRepository {
	if u.familyRepo == nil {
		notStarted()
	}
	return u.familyRepo
}

// AccountRepository returns the account repository for this unit of work
func (u *unitOfWork) AccountRepository() service.AccountRepository {
	if u.accountRepo == nil {
		notStarted()
	}
	return u.accountRepo
}

// LedgerRepository returns the ledger repository for this unit of work
func (u *unitOfWork) LedgerRepository() service.LedgerRepository {
	if u.ledgerRepo == nil {
		notStarted()
	}
	return u.ledgerRepo
}

// TaskRepository returns the task repository for this unit of work
func (u *unitOfWork) TaskRepository() service.TaskRepository {
	if u.taskRepo == nil {
		notStarted()
	}
	return u.taskRepo
}

// TaskCompletionRepository returns the task completion repository for this unit of work
func (u *unitOfWork) TaskCompletionRepository() service.TaskCompletionRepository {
	if u.taskCompletionRepo == nil {
		notStarted()
	}
	return u.taskCompletionRepo
}

// RewardRepository returns the reward repository for this unit of work
func (u *unitOfWork) RewardRepository() service.RewardRepository {
	if u.rewardRepo == nil {
		notStarted()
	}
	return u.rewardRepo
}

// RewardPurchaseRepository returns the reward purchase repository for this unit of work
func (u *unitOfWork) RewardPurchaseRepository() service.RewardPurchaseRepository {
	if u.rewardPurchaseRepo == nil {
		notStarted()
	}
	return u.rewardPurchaseRepo
}

// GoalRepository returns the goal repository for this unit of work
func (u *unitOfWork) GoalRepository() service.GoalRepository {
	if u.goalRepo == nil {
		notStarted()
	}
	return u.goalRepo
}

// ScreenTimeRepository returns the screen time repository for this unit of work
func (u *unitOfWork) ScreenTimeRepository() service.ScreenTimeRepository {
	if u.screenTimeRepo == nil {
		notStarted()
	}
	return u.screenTimeRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		notStarted()
	}
	return u.transactionalBus
}
