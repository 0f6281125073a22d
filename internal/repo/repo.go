package repo

import (
	"context"
	"database/sql"
	"errors"

	"leadline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- leads ---

func (r Repo) InsertLead(ctx context.Context, tx *sql.Tx, l domain.Lead) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO leads(id,name,email,company,status,value,last_contacted,notes) VALUES (?,?,?,?,?,?,?,?)`,
		l.ID, l.Name, l.Email, l.Company, string(l.Status), l.Value, l.LastContacted, l.Notes)
	return err
}

func (r Repo) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,email,company,status,value,last_contacted,notes FROM leads WHERE id=?`, id)
	return scanLead(row)
}

// ListLeads returns leads newest-first: the most recently added lead is
// always at index 0.
func (r Repo) ListLeads(ctx context.Context) ([]domain.Lead, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,company,status,value,last_contacted,notes FROM leads ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Lead
	for rows.Next() {
		var l domain.Lead
		var status string
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Company, &status, &l.Value, &l.LastContacted, &l.Notes); err != nil {
			return nil, err
		}
		l.Status = domain.LeadStatus(status)
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) LeadExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM leads WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func scanLead(row *sql.Row) (domain.Lead, error) {
	var l domain.Lead
	var status string
	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Company, &status, &l.Value, &l.LastContacted, &l.Notes)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	l.Status = domain.LeadStatus(status)
	return l, err
}

// --- deals ---

func (r Repo) InsertDeal(ctx context.Context, tx *sql.Tx, d domain.Deal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO deals(id,title,lead_id,value,stage,expected_close_date) VALUES (?,?,?,?,?,?)`,
		d.ID, d.Title, d.LeadID, d.Value, string(d.Stage), d.ExpectedCloseDate)
	return err
}

func (r Repo) GetDeal(ctx context.Context, id string) (domain.Deal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,title,lead_id,value,stage,expected_close_date FROM deals WHERE id=?`, id)
	var d domain.Deal
	var stage string
	err := row.Scan(&d.ID, &d.Title, &d.LeadID, &d.Value, &stage, &d.ExpectedCloseDate)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	d.Stage = domain.DealStage(stage)
	return d, err
}

func (r Repo) ListDeals(ctx context.Context) ([]domain.Deal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,lead_id,value,stage,expected_close_date FROM deals ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deal
	for rows.Next() {
		var d domain.Deal
		var stage string
		if err := rows.Scan(&d.ID, &d.Title, &d.LeadID, &d.Value, &stage, &d.ExpectedCloseDate); err != nil {
			return nil, err
		}
		d.Stage = domain.DealStage(stage)
		res = append(res, d)
	}
	return res, rows.Err()
}

// UpdateDealStage replaces only the stage column. Returns false when no deal
// matched; that is not an error.
func (r Repo) UpdateDealStage(ctx context.Context, tx *sql.Tx, id string, stage domain.DealStage) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE deals SET stage=? WHERE id=?`, string(stage), id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// --- contacts ---

func (r Repo) InsertContact(ctx context.Context, tx *sql.Tx, c domain.Contact) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO contacts(id,name,email,phone,role,job_title,company,company_description,recent_interaction,avatar_url) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, c.Email, c.Phone, c.Role, c.JobTitle, c.Company,
		nullable(c.CompanyDescription), nullable(c.RecentInteraction), nullable(c.AvatarURL))
	return err
}

func (r Repo) GetContact(ctx context.Context, id string) (domain.Contact, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,email,phone,role,job_title,company,company_description,recent_interaction,avatar_url FROM contacts WHERE id=?`, id)
	var c domain.Contact
	var desc, interaction, avatar sql.NullString
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Role, &c.JobTitle, &c.Company, &desc, &interaction, &avatar)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.CompanyDescription = desc.String
	c.RecentInteraction = interaction.String
	c.AvatarURL = avatar.String
	return c, err
}

// ListContacts returns contacts newest-first, same ordering contract as leads.
func (r Repo) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,phone,role,job_title,company,company_description,recent_interaction,avatar_url FROM contacts ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contact
	for rows.Next() {
		var c domain.Contact
		var desc, interaction, avatar sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Role, &c.JobTitle, &c.Company, &desc, &interaction, &avatar); err != nil {
			return nil, err
		}
		c.CompanyDescription = desc.String
		c.RecentInteraction = interaction.String
		c.AvatarURL = avatar.String
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeleteContact removes the contact if present. Returns false when nothing
// matched; absence is not an error.
func (r Repo) DeleteContact(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// --- tasks ---

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	completed := 0
	if t.Completed {
		completed = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,due_date,priority,completed,related_to) VALUES (?,?,?,?,?,?)`,
		t.ID, t.Title, t.DueDate, string(t.Priority), completed, nullable(t.RelatedTo))
	return err
}

func (r Repo) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,due_date,priority,completed,related_to FROM tasks ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var priority string
		var completed int
		var related sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &t.DueDate, &priority, &completed, &related); err != nil {
			return nil, err
		}
		t.Priority = domain.TaskPriority(priority)
		t.Completed = completed != 0
		t.RelatedTo = related.String
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- events ---

// LatestEvents returns the n most recent mutation log entries, newest first,
// optionally filtered by type and entity.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE 1=1`
	var args []any
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
