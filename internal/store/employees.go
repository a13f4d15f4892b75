package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const employeeColumns = "id, card_id, name, position, created_at"

func scanEmployee(scanner interface{ Scan(dest ...any) error }) (*Employee, error) {
	var (
		id         string
		cardID     sql.NullString
		name       string
		position   sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(&id, &cardID, &name, &position, &createdRaw); err != nil {
		return nil, err
	}
	emp := &Employee{
		ID:       id,
		CardID:   cardID.String,
		Name:     name,
		Position: position.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		emp.CreatedAt = created
	}
	return emp, nil
}

// UpsertEmployee inserts or replaces a registry entry keyed by employee id.
func (s *Store) UpsertEmployee(ctx context.Context, emp *Employee) error {
	if emp == nil || emp.ID == "" {
		return errors.New("employee id is required")
	}
	now := time.Now().UTC()
	created := emp.CreatedAt
	if created.IsZero() {
		created = now
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO employees (id, card_id, name, position, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET card_id = excluded.card_id,
             name = excluded.name, position = excluded.position`,
		emp.ID,
		nullableString(emp.CardID),
		emp.Name,
		nullableString(emp.Position),
		timestamp(created),
	); err != nil {
		return fmt.Errorf("upsert employee: %w", err)
	}
	return nil
}

// EmployeeByCard resolves an RFID card to its registry entry. Returns nil
// when the card is unknown.
func (s *Store) EmployeeByCard(ctx context.Context, cardID string) (*Employee, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE card_id = ?`, cardID)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("employee by card: %w", err)
	}
	return emp, nil
}

// EmployeeByID fetches a registry entry by employee id. Returns nil when
// absent.
func (s *Store) EmployeeByID(ctx context.Context, id string) (*Employee, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("employee by id: %w", err)
	}
	return emp, nil
}

// ListEmployees returns the registry ordered by name.
func (s *Store) ListEmployees(ctx context.Context) ([]*Employee, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []*Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}
