package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// BedRepository 床位表仓库（远端持久化存储）
type BedRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBedRepository 创建床位仓库
func NewBedRepository(db *sql.DB, logger *zap.Logger) *BedRepository {
	return &BedRepository{
		db:     db,
		logger: logger,
	}
}

var bedColumns = []string{
	"id",
	"status",
	"current_preset_id",
	"custom_preset_json",
	"current_step_index",
	"remaining_time",
	"timer_duration",
	"start_time",
	"is_paused",
	"is_injection",
	"is_fluid",
	"is_traction",
	"is_eswt",
	"is_manual",
	"memos_json",
	"last_update_ts",
}

// UpdateBed 行级部分更新（payload 键为 snake_case 列名）
func (r *BedRepository) UpdateBed(ctx context.Context, bedID int, payload map[string]interface{}) error {
	if len(payload) == 0 {
		return nil
	}

	// 列名排序保证生成的 SQL 稳定
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
	args = append(args, bedID)

	query := fmt.Sprintf("UPDATE beds SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update bed %d: %w", bedID, err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		r.logger.Warn("Bed update matched no rows",
			zap.Int("bed_id", bedID),
		)
	}

	return nil
}

// UpsertBeds 批量整行写入（撤销恢复使用，显式覆盖全部列）
func (r *BedRepository) UpsertBeds(ctx context.Context, beds []models.Bed) error {
	if len(beds) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(bedColumns))
	updates := make([]string, 0, len(bedColumns)-1)
	for i, col := range bedColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO beds (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		strings.Join(bedColumns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare bed upsert: %w", err)
	}
	defer stmt.Close()

	for _, bed := range beds {
		payload := bed.FullDBPayload()
		args := make([]interface{}, len(bedColumns))
		for i, col := range bedColumns {
			args[i] = payload[col]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert bed %d: %w", bed.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bed upsert: %w", err)
	}

	return nil
}

// ListBeds 读取全部床位（启动时播种内存状态）
func (r *BedRepository) ListBeds(ctx context.Context) ([]models.Bed, error) {
	query := fmt.Sprintf("SELECT %s FROM beds ORDER BY id", strings.Join(bedColumns, ", "))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list beds: %w", err)
	}
	defer rows.Close()

	var beds []models.Bed
	for rows.Next() {
		var bed models.Bed
		var presetID sql.NullString
		var customPreset, memos []byte

		err := rows.Scan(
			&bed.ID,
			&bed.Status,
			&presetID,
			&customPreset,
			&bed.CurrentStepIndex,
			&bed.RemainingTime,
			&bed.TimerDuration,
			&bed.StartTime,
			&bed.IsPaused,
			&bed.IsInjection,
			&bed.IsFluid,
			&bed.IsTraction,
			&bed.IsESWT,
			&bed.IsManual,
			&memos,
			&bed.LastUpdateTS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bed row: %w", err)
		}

		if presetID.Valid {
			bed.CurrentPresetID = presetID.String
		}
		if len(customPreset) > 0 {
			var p models.Preset
			if err := json.Unmarshal(customPreset, &p); err != nil {
				r.logger.Warn("Failed to unmarshal custom preset, dropping",
					zap.Int("bed_id", bed.ID),
					zap.Error(err),
				)
			} else {
				bed.CustomPreset = &p
			}
		}
		bed.Memos = map[int]string{}
		if len(memos) > 0 {
			if err := json.Unmarshal(memos, &bed.Memos); err != nil {
				r.logger.Warn("Failed to unmarshal bed memos",
					zap.Int("bed_id", bed.ID),
					zap.Error(err),
				)
			}
		}

		beds = append(beds, bed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bed rows: %w", err)
	}

	return beds, nil
}
