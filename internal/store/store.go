package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"leadline/internal/domain"
	"leadline/internal/events"
	"leadline/internal/repo"
)

// Store owns the session's CRM collections and is the only sanctioned way to
// mutate them. The surface is deliberately asymmetric: leads and contacts can
// be added, contacts deleted, and deal stages updated. Nothing else changes
// after seeding.
type Store struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
}

func New(db *sql.DB) Store {
	return Store{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db, Now: time.Now},
	}
}

// AddLead validates the record at the store boundary and prepends it to the
// lead collection: the newest lead is always first in snapshot order.
func (s Store) AddLead(ctx context.Context, l domain.Lead) error {
	if l.ID == "" {
		return errors.New("lead id is required")
	}
	if l.Value < 0 {
		return fmt.Errorf("lead value must be non-negative, got %v", l.Value)
	}
	if !domain.ValidStatus(l.Status) {
		return fmt.Errorf("invalid lead status %q", l.Status)
	}
	if exists, err := s.Repo.LeadExists(ctx, l.ID); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("lead %s already exists", l.ID)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertLead(ctx, tx, l); err != nil {
		return err
	}
	if err := s.Events.Append(ctx, tx, "lead.added", "lead", l.ID, events.EventPayload{
		"name": l.Name, "company": l.Company, "status": string(l.Status), "value": l.Value,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AddContact prepends to the contact collection, same ordering contract as
// AddLead.
func (s Store) AddContact(ctx context.Context, c domain.Contact) error {
	if c.ID == "" {
		return errors.New("contact id is required")
	}
	if _, err := s.Repo.GetContact(ctx, c.ID); err == nil {
		return fmt.Errorf("contact %s already exists", c.ID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertContact(ctx, tx, c); err != nil {
		return err
	}
	if err := s.Events.Append(ctx, tx, "contact.added", "contact", c.ID, events.EventPayload{
		"name": c.Name, "company": c.Company,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteContact removes the matching contact. An absent id is a silent no-op,
// never an error; no event is logged for a no-op. The store keeps no
// back-references, so any caller-held pointer to the contact is the caller's
// problem to clear.
func (s Store) DeleteContact(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	removed, err := s.Repo.DeleteContact(ctx, tx, id)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	if err := s.Events.Append(ctx, tx, "contact.deleted", "contact", id, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateDealStage replaces the stage of the matching deal, leaving every
// other field untouched. Transitions are unconstrained: any stage is
// reachable from any stage, backward moves included. Absent id is a silent
// no-op.
func (s Store) UpdateDealStage(ctx context.Context, id string, stage domain.DealStage) error {
	if !domain.ValidStage(stage) {
		return fmt.Errorf("invalid deal stage %q", stage)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	updated, err := s.Repo.UpdateDealStage(ctx, tx, id, stage)
	if err != nil {
		return err
	}
	if !updated {
		return nil
	}
	if err := s.Events.Append(ctx, tx, "deal.stage.updated", "deal", id, events.EventPayload{
		"stage": string(stage),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Snapshot reads all four collections in collection order. The result is a
// copy: callers can hand it to the query layer or serialize it for the
// assist gateway without holding the store.
func (s Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	var err error
	if snap.Leads, err = s.Repo.ListLeads(ctx); err != nil {
		return snap, err
	}
	if snap.Deals, err = s.Repo.ListDeals(ctx); err != nil {
		return snap, err
	}
	if snap.Contacts, err = s.Repo.ListContacts(ctx); err != nil {
		return snap, err
	}
	if snap.Tasks, err = s.Repo.ListTasks(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

// Seed loads fixture collections into an empty session. Leads and contacts
// are inserted oldest-first so that the fixture order reads back unchanged
// under the newest-first snapshot ordering. Seeding is not logged as
// mutations.
func (s Store) Seed(ctx context.Context, snap domain.Snapshot) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i := len(snap.Leads) - 1; i >= 0; i-- {
		if err := s.Repo.InsertLead(ctx, tx, snap.Leads[i]); err != nil {
			return fmt.Errorf("seed lead %s: %w", snap.Leads[i].ID, err)
		}
	}
	for i := len(snap.Contacts) - 1; i >= 0; i-- {
		if err := s.Repo.InsertContact(ctx, tx, snap.Contacts[i]); err != nil {
			return fmt.Errorf("seed contact %s: %w", snap.Contacts[i].ID, err)
		}
	}
	for _, d := range snap.Deals {
		if err := s.Repo.InsertDeal(ctx, tx, d); err != nil {
			return fmt.Errorf("seed deal %s: %w", d.ID, err)
		}
	}
	for _, t := range snap.Tasks {
		if err := s.Repo.InsertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("seed task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}
