package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// VisitRepository 就诊记录表仓库
type VisitRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVisitRepository 创建就诊记录仓库
func NewVisitRepository(db *sql.DB, logger *zap.Logger) *VisitRepository {
	return &VisitRepository{
		db:     db,
		logger: logger,
	}
}

var visitColumns = []string{
	"id",
	"bed_id",
	"patient_name",
	"body_part",
	"treatment_name",
	"is_injection",
	"is_fluid",
	"is_traction",
	"is_eswt",
	"is_manual",
	"memo",
	"author",
	"created_at",
}

func visitArgs(v models.PatientVisit) []interface{} {
	var bedID interface{}
	if v.BedID != nil {
		bedID = *v.BedID
	}
	return []interface{}{
		v.ID,
		bedID,
		v.PatientName,
		v.BodyPart,
		v.TreatmentName,
		v.IsInjection,
		v.IsFluid,
		v.IsTraction,
		v.IsESWT,
		v.IsManual,
		v.Memo,
		v.Author,
		v.CreatedAt,
	}
}

// InsertVisit 新建就诊记录行
func (r *VisitRepository) InsertVisit(ctx context.Context, v models.PatientVisit) error {
	if v.ID == "" {
		return fmt.Errorf("visit id is required")
	}

	placeholders := make([]string, len(visitColumns))
	for i := range visitColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		"INSERT INTO patient_visits (%s) VALUES (%s)",
		strings.Join(visitColumns, ", "),
		strings.Join(placeholders, ", "),
	)

	if _, err := r.db.ExecContext(ctx, query, visitArgs(v)...); err != nil {
		return fmt.Errorf("failed to insert visit %s: %w", v.ID, err)
	}

	return nil
}

// UpdateVisit 行级部分更新
func (r *VisitRepository) UpdateVisit(ctx context.Context, visitID string, payload map[string]interface{}) error {
	if visitID == "" {
		return fmt.Errorf("visit id is required")
	}
	if len(payload) == 0 {
		return nil
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys)+1)
	for i, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = $%d", k, i+1))
		args = append(args, payload[k])
	}
	args = append(args, visitID)

	query := fmt.Sprintf("UPDATE patient_visits SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update visit %s: %w", visitID, err)
	}

	return nil
}

// DeleteVisit 删除就诊记录行
func (r *VisitRepository) DeleteVisit(ctx context.Context, visitID string) error {
	if visitID == "" {
		return fmt.Errorf("visit id is required")
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM patient_visits WHERE id = $1", visitID); err != nil {
		return fmt.Errorf("failed to delete visit %s: %w", visitID, err)
	}

	return nil
}

// UpsertVisits 批量整行写入（撤销恢复使用）
func (r *VisitRepository) UpsertVisits(ctx context.Context, visits []models.PatientVisit) error {
	if len(visits) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin visit upsert tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(visitColumns))
	updates := make([]string, 0, len(visitColumns)-1)
	for i, col := range visitColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO patient_visits (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		strings.Join(visitColumns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare visit upsert: %w", err)
	}
	defer stmt.Close()

	for _, v := range visits {
		if _, err := stmt.ExecContext(ctx, visitArgs(v)...); err != nil {
			return fmt.Errorf("failed to upsert visit %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit visit upsert: %w", err)
	}

	return nil
}

// ListVisitsByDate 读取指定日期的就诊记录（当日日志）
func (r *VisitRepository) ListVisitsByDate(ctx context.Context, day time.Time) ([]models.PatientVisit, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	query := fmt.Sprintf(
		"SELECT %s FROM patient_visits WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at",
		strings.Join(visitColumns, ", "),
	)

	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	var visits []models.PatientVisit
	for rows.Next() {
		var v models.PatientVisit
		var bedID sql.NullInt64

		err := rows.Scan(
			&v.ID,
			&bedID,
			&v.PatientName,
			&v.BodyPart,
			&v.TreatmentName,
			&v.IsInjection,
			&v.IsFluid,
			&v.IsTraction,
			&v.IsESWT,
			&v.IsManual,
			&v.Memo,
			&v.Author,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit row: %w", err)
		}

		if bedID.Valid {
			id := int(bedID.Int64)
			v.BedID = &id
		}

		visits = append(visits, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visit rows: %w", err)
	}

	return visits, nil
}
