package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"shongo-controller/internal/shared/model"
	"shongo-controller/internal/shared/storage"
	"shongo-controller/internal/shared/storage/dbutil"
)

const reservationColumns = `id, request_id, type, status, slot_start, slot_end, resource_id, port_count,
	technologies, domain_id, created_by, description, message, created_at, updated_at`

const allocationColumns = `id, resource_id, reservation_id, slot_start, slot_end, port_count, created_at`

// === Reservation 预约 ===

// CreateReservation 在同一事务中写入预约及其分配记录
func (s *Store) CreateReservation(ctx context.Context, r *model.Reservation, allocations []*model.AllocatedResource) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insertReservation(ctx, tx, r, allocations)
	})
}

// ReplaceReservation 在同一事务中删除旧预约的分配并写入新预约
//
// 旧预约不是 allocated 状态时返回 storage.ErrConflict（已被并发修改或删除）。
func (s *Store) ReplaceReservation(ctx context.Context, previousID string, r *model.Reservation, allocations []*model.AllocatedResource) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE reservations SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
		`), model.ReservationStatusDeleted, r.UpdatedAt, previousID, model.ReservationStatusAllocated)
		if err != nil {
			return err
		}
		if rows, err := result.RowsAffected(); err != nil {
			return err
		} else if rows == 0 {
			return fmt.Errorf("%w: reservation %s is not allocated", storage.ErrConflict, previousID)
		}

		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM allocated_resources WHERE reservation_id = $1`), previousID); err != nil {
			return err
		}
		return s.insertReservation(ctx, tx, r, allocations)
	})
}

func (s *Store) insertReservation(ctx context.Context, tx *sql.Tx, r *model.Reservation, allocations []*model.AllocatedResource) error {
	techJSON, err := marshalJSON(r.Technologies)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`),
		r.ID, r.RequestID, r.Type, r.Status,
		dbutil.ToMillis(r.Slot.Start), dbutil.ToMillis(r.Slot.End),
		r.ResourceID, r.PortCount, techJSON, r.DomainID, r.CreatedBy,
		r.Description, r.Message, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return s.wrapError(err)
	}

	insert := s.rebind(`INSERT INTO allocated_resources (` + allocationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	for _, a := range allocations {
		_, err := tx.ExecContext(ctx, insert,
			a.ID, a.ResourceID, a.ReservationID,
			dbutil.ToMillis(a.Slot.Start), dbutil.ToMillis(a.Slot.End),
			a.PortCount, a.CreatedAt)
		if err != nil {
			return s.wrapError(err)
		}
	}
	return nil
}

// GetReservation 获取预约
func (s *Store) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	query := s.rebind(`SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`)
	r, err := scanReservation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// GetReservationByRequest 获取预约请求当前的预约
//
// 优先返回未删除的预约，其次是最新创建的一条。
func (s *Store) GetReservationByRequest(ctx context.Context, requestID string) (*model.Reservation, error) {
	query := s.rebind(`
		SELECT ` + reservationColumns + ` FROM reservations
		WHERE request_id = $1
		ORDER BY CASE WHEN status = $2 THEN 1 ELSE 0 END, created_at DESC
		LIMIT 1
	`)
	r, err := scanReservation(s.db.QueryRowContext(ctx, query, requestID, model.ReservationStatusDeleted))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListReservations 按过滤条件列出预约（按开始时间排序）
func (s *Store) ListReservations(ctx context.Context, filter model.ReservationFilter) ([]*model.Reservation, error) {
	var conditions []string
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if len(filter.ResourceIDs) > 0 {
		placeholders := dbutil.PlaceholderList(len(args)+1, len(filter.ResourceIDs))
		for _, id := range filter.ResourceIDs {
			args = append(args, id)
		}
		conditions = append(conditions, "resource_id IN ("+placeholders+")")
	}
	if filter.DomainID != "" {
		conditions = append(conditions, "domain_id = "+next(filter.DomainID))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+next(filter.Status))
	}
	if filter.Slot != nil {
		conditions = append(conditions, "slot_start < "+next(dbutil.ToMillis(filter.Slot.End)))
		conditions = append(conditions, "slot_end > "+next(dbutil.ToMillis(filter.Slot.Start)))
	}

	query, args := dbutil.BuildDynamicQuery(s.dialect, `SELECT `+reservationColumns+` FROM reservations`, conditions, args)
	query += " ORDER BY slot_start, id"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []*model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// DeleteReservation 标记预约为 deleted 并删除其分配记录
func (s *Store) DeleteReservation(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, s.rebind(`UPDATE reservations SET status = $1 WHERE id = $2`),
			model.ReservationStatusDeleted, id)
		if err != nil {
			return err
		}
		if err := expectAffected(result); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM allocated_resources WHERE reservation_id = $1`), id)
		return err
	})
}

// === AllocatedResource 分配记录 ===

// ListAllocatedResources 列出与 window 重叠的分配记录
func (s *Store) ListAllocatedResources(ctx context.Context, window model.Interval) ([]*model.AllocatedResource, error) {
	query := s.rebind(`
		SELECT ` + allocationColumns + ` FROM allocated_resources
		WHERE slot_start < $1 AND slot_end > $2
		ORDER BY slot_start, id
	`)
	return s.queryAllocations(ctx, query, dbutil.ToMillis(window.End), dbutil.ToMillis(window.Start))
}

// ListAllocatedResourcesByReservation 列出预约的分配记录
func (s *Store) ListAllocatedResourcesByReservation(ctx context.Context, reservationID string) ([]*model.AllocatedResource, error) {
	query := s.rebind(`SELECT ` + allocationColumns + ` FROM allocated_resources WHERE reservation_id = $1 ORDER BY id`)
	return s.queryAllocations(ctx, query, reservationID)
}

func (s *Store) queryAllocations(ctx context.Context, query string, args ...interface{}) ([]*model.AllocatedResource, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []*model.AllocatedResource
	for rows.Next() {
		a := &model.AllocatedResource{}
		var start, end int64
		if err := rows.Scan(&a.ID, &a.ResourceID, &a.ReservationID, &start, &end, &a.PortCount, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Slot = model.NewInterval(dbutil.FromMillis(start), dbutil.FromMillis(end))
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// scanReservation 从数据库行扫描 Reservation
func scanReservation(scanner rowScanner) (*model.Reservation, error) {
	r := &model.Reservation{}
	var start, end int64
	var resourceID, domainID, createdBy, description, message sql.NullString
	var techJSON []byte
	err := scanner.Scan(
		&r.ID, &r.RequestID, &r.Type, &r.Status, &start, &end, &resourceID, &r.PortCount,
		&techJSON, &domainID, &createdBy, &description, &message, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Slot = model.NewInterval(dbutil.FromMillis(start), dbutil.FromMillis(end))
	r.ResourceID = resourceID.String
	r.DomainID = domainID.String
	r.CreatedBy = createdBy.String
	r.Description = description.String
	r.Message = message.String
	if err := unmarshalJSON(techJSON, &r.Technologies); err != nil {
		return nil, fmt.Errorf("reservation %s technologies: %w", r.ID, err)
	}
	return r, nil
}
