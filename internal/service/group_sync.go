package service

import (
	"context"
	"sync"
	"time"

	"github.com/SergeiKhy/fileshare/internal/groups"
	"github.com/SergeiKhy/fileshare/internal/models"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	maxMoveRetries       = 3    // Максимальное количество попыток переноса
	moveTimeout          = 10 * time.Second
)

// GroupNotifier принимает переносы между группами. Реализации не блокируют вызывающего
// и не возвращают ошибок: перенос best-effort и не влияет на смену тарифа.
type GroupNotifier interface {
	Notify(ctx context.Context, move models.GroupMove)
}

// GroupSyncProcessor асинхронно применяет переносы через groups.Mover
type GroupSyncProcessor interface {
	GroupNotifier
	Start()
	Stop()
	Stats() ChannelStats
}

// groupSyncProcessor реализация с использованием Worker Pool
type groupSyncProcessor struct {
	mover       groups.Mover
	logger      *zap.Logger
	moves       chan models.GroupMove
	workerCount int
	backoff     time.Duration
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

type GroupSyncConfig struct {
	Workers int
	Buffer  int
	// Backoff базовая пауза между попытками, растёт линейно
	Backoff time.Duration
}

// NewGroupSyncProcessor создаёт новый экземпляр процессора переносов
func NewGroupSyncProcessor(mover groups.Mover, logger *zap.Logger, cfg GroupSyncConfig) GroupSyncProcessor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultChannelBuffer
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &groupSyncProcessor{
		mover:       mover,
		logger:      logger,
		moves:       make(chan models.GroupMove, cfg.Buffer),
		workerCount: cfg.Workers,
		backoff:     cfg.Backoff,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start запускает worker pool
func (p *groupSyncProcessor) Start() {
	p.logger.Info("Запуск воркеров синхронизации групп", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop перестаёт принимать переносы и дожидается обработки очереди
func (p *groupSyncProcessor) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.moves)
	p.mu.Unlock()

	p.logger.Info("Остановка синхронизации групп...", zap.Int("pending", len(p.moves)))
	p.wg.Wait()
	p.cancel()
	p.logger.Info("Синхронизация групп остановлена")
}

func (p *groupSyncProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер синхронизации групп запущен", zap.Int("id", id))

	// Канал закрывается в Stop, оставшиеся переносы дорабатываются
	for move := range p.moves {
		p.apply(move)
	}

	p.logger.Debug("Воркер синхронизации групп остановлен", zap.Int("id", id))
}

// apply выполняет один перенос с retry логикой
func (p *groupSyncProcessor) apply(move models.GroupMove) {
	var err error
	for i := 0; i < maxMoveRetries; i++ {
		ctx, cancel := context.WithTimeout(p.ctx, moveTimeout)
		err = p.mover.Move(ctx, move.User, move.From, move.To)
		cancel()
		if err == nil {
			p.logger.Info("Пользователь перенесён в группу",
				zap.String("user", move.User),
				zap.String("from", move.From),
				zap.String("to", move.To),
			)
			return
		}

		if i < maxMoveRetries-1 {
			p.logger.Debug("Повторная попытка переноса в группу",
				zap.String("user", move.User),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * p.backoff)
		}
	}

	p.logger.Error("Не удалось перенести пользователя в группу после всех попыток",
		zap.String("user", move.User),
		zap.String("to", move.To),
		zap.Error(err),
	)
}

// Notify ставит перенос в очередь (неблокирующая операция)
func (p *groupSyncProcessor) Notify(ctx context.Context, move models.GroupMove) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.logger.Warn("Синхронизация групп остановлена, перенос потерян", zap.String("user", move.User))
		return
	}

	select {
	case p.moves <- move:
	case <-ctx.Done():
		p.logger.Warn("Перенос в группу отменён", zap.String("user", move.User), zap.Error(ctx.Err()))
	default:
		// Канал заполнен, не блокируем запрос
		p.logger.Warn("Буфер синхронизации групп заполнен, перенос потерян",
			zap.String("user", move.User),
			zap.String("to", move.To),
		)
	}
}

// Stats возвращает статистику канала для мониторинга
func (p *groupSyncProcessor) Stats() ChannelStats {
	return ChannelStats{
		BufferSize:  cap(p.moves),
		BufferUsed:  len(p.moves),
		WorkerCount: p.workerCount,
	}
}

// ChannelStats статистика канала worker pool
type ChannelStats struct {
	BufferSize  int `json:"buffer_size"`  // Общая ёмкость канала
	BufferUsed  int `json:"buffer_used"`  // Текущее использование
	WorkerCount int `json:"worker_count"` // Количество воркеров
}
