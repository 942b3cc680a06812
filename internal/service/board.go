package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/board"
	"github.com/hansonjs80-design/PTperfect/internal/cache"
	"github.com/hansonjs80-design/PTperfect/internal/catalog"
	"github.com/hansonjs80-design/PTperfect/internal/config"
	"github.com/hansonjs80-design/PTperfect/internal/history"
	"github.com/hansonjs80-design/PTperfect/internal/models"
	"github.com/hansonjs80-design/PTperfect/internal/notify"
	"github.com/hansonjs80-design/PTperfect/internal/patientlog"
	"github.com/hansonjs80-design/PTperfect/internal/realtime"
	"github.com/hansonjs80-design/PTperfect/internal/repository"
	bedsync "github.com/hansonjs80-design/PTperfect/internal/sync"
)

// Options 服务装配选项
// DB/Redis 可为 nil：nil DB 进入离线模式（仅本地镜像），nil Redis 关闭镜像与实时推送
type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sql.DB
	Redis    *redis.Client
	Notifier notify.Notifier
	Confirm  bedsync.ConfirmFunc
	Presets  []models.Preset
	Quick    []models.QuickTreatment
}

// BoardService 床位看板应用状态门面
// 显式构造一次、按引用下发的唯一入口对象；所有变更动作在此处统一做历史快照
type BoardService struct {
	cfg    *config.Config
	logger *zap.Logger

	catalog  *board.Catalog
	beds     *board.BedStore
	visits   *patientlog.VisitStore
	engine   *board.TimerEngine
	actions  *board.Actions
	controls *board.Controls
	integ    *board.Integration
	syncer   *bedsync.Synchronizer
	history  *history.Manager

	subscriber *realtime.Subscriber
	cancel     context.CancelFunc
}

// NewBoardService 装配看板服务
// 依赖顺序（两阶段构造，替代原先的 ref-cell 前向引用）：
// 目录/仓库/缓存 → 床位存储 → 控制/动作/整合 → 日志存储 → 同步层 → 回调绑定
func NewBoardService(opts Options) (*BoardService, error) {
	cfg := opts.Config
	logger := opts.Logger
	if cfg == nil || logger == nil {
		return nil, fmt.Errorf("config and logger are required")
	}

	presets := opts.Presets
	if presets == nil {
		presets = catalog.DefaultPresets()
	}
	quick := opts.Quick
	if quick == nil {
		quick = catalog.StandardTreatments
	}
	cat := board.NewCatalog(presets, quick)

	// 1. 持久化边缘
	var bedRepo *repository.BedRepository
	var visitRepo *repository.VisitRepository
	if opts.DB != nil {
		bedRepo = repository.NewBedRepository(opts.DB, logger)
		visitRepo = repository.NewVisitRepository(opts.DB, logger)
	}

	var mirror *cache.BedCache
	var pub *realtime.Publisher
	var sub *realtime.Subscriber
	if opts.Redis != nil {
		mirror = cache.NewBedCache(cache.NewRedisKVStore(opts.Redis), cfg.Board.CacheKey, logger)
		clientID := uuid.New().String()
		pub = realtime.NewPublisher(opts.Redis, cfg.Board.RealtimeChannel, clientID, logger)
		sub = realtime.NewSubscriber(opts.Redis, cfg.Board.RealtimeChannel, clientID, logger)
	}

	// 2. 床位状态播种：远端 → 镜像 → 全新空床
	beds := seedBeds(cfg, bedRepo, mirror, logger)

	var remote board.RemoteWriter
	var bedMirror board.Mirror
	var bedPub board.ChangePublisher
	if bedRepo != nil {
		remote = bedRepo
	}
	if mirror != nil {
		bedMirror = mirror
	}
	if pub != nil {
		bedPub = pub
	}
	bedStore := board.NewBedStore(beds, remote, bedMirror, bedPub, logger)

	// 3. 床位动作各层
	controls := board.NewControls(bedStore, cat, cfg.Board.TrashWindow, logger)
	actions := board.NewActions(bedStore, cat, logger)
	integ := board.NewIntegration(bedStore, cat, controls, logger)
	engine := board.NewTimerEngine(bedStore, cat, opts.Notifier, cfg.Board.TickInterval, logger)

	// 4. 当日日志
	var visitStoreRepo patientlog.Repo
	if visitRepo != nil {
		visitStoreRepo = visitRepo
	}
	visits := seedVisits(visitRepo, logger)
	visitStore := patientlog.NewVisitStore(visits, visitStoreRepo, logger)

	// 5. 同步层（此时两侧存储都已存在，直接传具体引用）
	syncer := bedsync.NewSynchronizer(bedStore, visitStore, controls, integ, opts.Confirm, logger)

	// 6. 回调绑定
	controls.BindLogSink(syncer.HandleLogUpdate)
	actions.BindVisitCreator(visitStore.AddVisit)

	return &BoardService{
		cfg:        cfg,
		logger:     logger,
		catalog:    cat,
		beds:       bedStore,
		visits:     visitStore,
		engine:     engine,
		actions:    actions,
		controls:   controls,
		integ:      integ,
		syncer:     syncer,
		history:    history.NewManager(cfg.Board.HistoryDepth, cfg.Board.SnapshotDebounce),
		subscriber: sub,
	}, nil
}

func seedBeds(cfg *config.Config, repo *repository.BedRepository, mirror *cache.BedCache, logger *zap.Logger) []models.Bed {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if repo != nil {
		beds, err := repo.ListBeds(ctx)
		if err == nil && len(beds) > 0 {
			return beds
		}
		if err != nil {
			logger.Warn("Failed to load beds from database, falling back to mirror",
				zap.Error(err),
			)
		}
	}

	if mirror != nil {
		beds, err := mirror.LoadBeds(ctx)
		if err == nil && len(beds) > 0 {
			logger.Info("Seeded beds from mirror cache (offline mode)",
				zap.Int("bed_count", len(beds)),
			)
			return beds
		}
		if err != nil && err != cache.ErrCacheMiss {
			logger.Warn("Failed to load bed mirror",
				zap.Error(err),
			)
		}
	}

	return board.SeedBeds(cfg.Board.TotalBeds)
}

func seedVisits(repo *repository.VisitRepository, logger *zap.Logger) []models.PatientVisit {
	if repo == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	visits, err := repo.ListVisitsByDate(ctx, time.Now())
	if err != nil {
		logger.Warn("Failed to load today's visits, starting empty",
			zap.Error(err),
		)
		return nil
	}
	return visits
}

// Start 启动实时订阅与计时引擎
func (s *BoardService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.subscriber != nil {
		go func() {
			err := s.subscriber.Run(runCtx, func(bed models.Bed) {
				if s.beds.MergeRemote(bed) {
					s.engine.EnsureRunning()
				}
			})
			if err != nil {
				s.logger.Error("Realtime subscription terminated",
					zap.Error(err),
				)
			}
		}()
	}

	s.engine.EnsureRunning()
	s.logger.Info("Board service started",
		zap.Int("bed_count", len(s.beds.Beds())),
	)
	return nil
}

// Stop 停止服务
func (s *BoardService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.engine.Stop()
	s.logger.Info("Board service stopped")
}

// snapshot 变更动作前保存历史快照
func (s *BoardService) snapshot() {
	s.history.SaveSnapshot(s.beds.Beds(), s.visits.Visits())
}

// ============================================
// 查询
// ============================================

func (s *BoardService) Beds() []models.Bed                   { return s.beds.Beds() }
func (s *BoardService) Bed(id int) (models.Bed, bool)        { return s.beds.Bed(id) }
func (s *BoardService) Visits() []models.PatientVisit        { return s.visits.Visits() }
func (s *BoardService) Presets() []models.Preset             { return s.catalog.Presets() }
func (s *BoardService) QuickTreatments() []models.QuickTreatment { return s.catalog.QuickTreatments() }
func (s *BoardService) CanUndo() bool                        { return s.history.CanUndo() }
func (s *BoardService) CanRedo() bool                        { return s.history.CanRedo() }

// ActiveVisitForBed 某床位的活动就诊记录
func (s *BoardService) ActiveVisitForBed(bedID int) (models.PatientVisit, bool) {
	return s.visits.ActiveVisitForBed(bedID)
}

// UpdatePresets 替换模板目录（设置面板）
func (s *BoardService) UpdatePresets(presets []models.Preset) {
	s.catalog.UpdatePresets(presets)
}

// UpdateQuickTreatments 替换快速开始目录
func (s *BoardService) UpdateQuickTreatments(quick []models.QuickTreatment) {
	s.catalog.UpdateQuickTreatments(quick)
}

// ============================================
// 开始治疗
// ============================================

func (s *BoardService) SelectPreset(bedID int, presetID string, opts board.StartOptions) {
	s.snapshot()
	s.actions.SelectPreset(bedID, presetID, opts)
	s.engine.EnsureRunning()
}

func (s *BoardService) StartCustomPreset(bedID int, name string, steps []models.TreatmentStep, opts board.StartOptions) {
	s.snapshot()
	s.actions.StartCustomPreset(bedID, name, steps, opts)
	s.engine.EnsureRunning()
}

func (s *BoardService) StartQuickTreatment(bedID int, t models.QuickTreatment, opts board.StartOptions) {
	s.snapshot()
	s.actions.StartQuickTreatment(bedID, t, opts)
	s.engine.EnsureRunning()
}

func (s *BoardService) StartTraction(bedID int, durationMinutes int, opts board.StartOptions) {
	s.snapshot()
	s.actions.StartTraction(bedID, durationMinutes, opts)
	s.engine.EnsureRunning()
}

// ============================================
// 运行期控制
// ============================================

func (s *BoardService) NextStep(bedID int) {
	s.snapshot()
	s.controls.NextStep(bedID)
	s.engine.EnsureRunning()
}

func (s *BoardService) PrevStep(bedID int) {
	s.snapshot()
	s.controls.PrevStep(bedID)
	s.engine.EnsureRunning()
}

func (s *BoardService) SwapSteps(bedID, idx1, idx2 int) {
	s.snapshot()
	s.controls.SwapSteps(bedID, idx1, idx2)
	s.engine.EnsureRunning()
}

// HandleSwapRequest 两次点击式交换；只有第二次点击真正执行交换时才入历史
func (s *BoardService) HandleSwapRequest(bedID, idx int) {
	if source, ok := s.controls.PendingSwapSource(bedID); ok && source != idx {
		s.snapshot()
	}
	s.controls.HandleSwapRequest(bedID, idx)
	s.engine.EnsureRunning()
}

func (s *BoardService) TogglePause(bedID int) {
	s.snapshot()
	s.controls.TogglePause(bedID)
	s.engine.EnsureRunning()
}

// 临床标记为纯显示徽章，不入历史快照
func (s *BoardService) ToggleInjection(bedID int) { s.controls.ToggleFlag(bedID, board.FlagInjection) }
func (s *BoardService) ToggleFluid(bedID int)     { s.controls.ToggleFlag(bedID, board.FlagFluid) }
func (s *BoardService) ToggleTraction(bedID int)  { s.controls.ToggleFlag(bedID, board.FlagTraction) }
func (s *BoardService) ToggleESWT(bedID int)      { s.controls.ToggleFlag(bedID, board.FlagESWT) }
func (s *BoardService) ToggleManual(bedID int)    { s.controls.ToggleFlag(bedID, board.FlagManual) }

func (s *BoardService) UpdateMemo(bedID, stepIndex int, memo string) {
	s.snapshot()
	s.controls.UpdateMemo(bedID, stepIndex, memo)
}

func (s *BoardService) UpdateBedDuration(bedID, seconds int) {
	s.snapshot()
	s.controls.UpdateBedDuration(bedID, seconds)
	s.engine.EnsureRunning()
}

func (s *BoardService) UpdateBedSteps(bedID int, steps []models.TreatmentStep) {
	s.snapshot()
	s.integ.UpdateBedSteps(bedID, steps)
	s.engine.EnsureRunning()
}

func (s *BoardService) ClearBed(bedID int) {
	s.snapshot()
	s.controls.ClearBed(bedID)
}

// HandleTrashClick 清床两阶段手势；只有实际删除才入历史
func (s *BoardService) HandleTrashClick(bedID int) board.TrashState {
	if s.controls.TrashStateOf(bedID) == board.TrashConfirm {
		s.snapshot()
	}
	return s.controls.HandleTrashClick(bedID)
}

func (s *BoardService) TrashStateOf(bedID int) board.TrashState {
	return s.controls.TrashStateOf(bedID)
}

func (s *BoardService) ResetAll() {
	s.snapshot()
	s.controls.ResetAll()
}

// ============================================
// 日志操作与跨域同步
// ============================================

func (s *BoardService) AddVisit(v models.PatientVisit) (string, error) {
	s.snapshot()
	return s.visits.AddVisit(v)
}

func (s *BoardService) DeleteVisit(visitID string) {
	s.snapshot()
	s.visits.DeleteVisit(visitID)
}

func (s *BoardService) UpdateVisitWithBedSync(visitID string, u models.VisitUpdate, skipBedSync bool) error {
	s.snapshot()
	err := s.syncer.UpdateVisitWithBedSync(visitID, u, skipBedSync)
	s.engine.EnsureRunning()
	return err
}

func (s *BoardService) MovePatient(fromBedID, toBedID int) error {
	s.snapshot()
	err := s.syncer.MovePatient(fromBedID, toBedID)
	s.engine.EnsureRunning()
	return err
}

// ============================================
// 撤销 / 重做
// ============================================

// Undo 恢复最近一次快照；历史为空时返回 false（no-op）
func (s *BoardService) Undo() bool {
	snap, ok := s.history.Undo(s.beds.Beds(), s.visits.Visits())
	if !ok {
		return false
	}
	s.beds.RestoreBeds(snap.Beds)
	s.visits.ReplaceAll(snap.Visits)
	s.engine.EnsureRunning()
	s.logger.Info("Undo applied")
	return true
}

// Redo 重做最近一次被撤销的动作
func (s *BoardService) Redo() bool {
	snap, ok := s.history.Redo(s.beds.Beds(), s.visits.Visits())
	if !ok {
		return false
	}
	s.beds.RestoreBeds(snap.Beds)
	s.visits.ReplaceAll(snap.Visits)
	s.engine.EnsureRunning()
	s.logger.Info("Redo applied")
	return true
}
