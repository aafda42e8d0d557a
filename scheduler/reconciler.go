package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"campus-voting-backend/cache"
	"campus-voting-backend/models"
)

// DefaultInterval 回收扫描周期
const DefaultInterval = time.Minute

// 分布式锁名称和持有时间，锁住一个完整的扫描周期
const (
	tickLockName   = "facility_reconciler_tick"
	tickLockExpiry = 50 * time.Second
)

// Reconciler 周期性释放已到期预约占用的场地。
// 多实例部署时通过分布式锁保证同一轮扫描只有一个实例执行
type Reconciler struct {
	db       *gorm.DB
	locks    *cache.DistributedLockService
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New 创建场地回收服务。locks可为nil（单实例部署时跳过分布式锁）
func New(db *gorm.DB, locks *cache.DistributedLockService, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		db:       db,
		locks:    locks,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动回收循环，阻塞直到ctx取消或Stop被调用
func (r *Reconciler) Start(ctx context.Context) {
	defer close(r.done)

	log.Printf("场地回收服务已启动, 扫描周期 %v", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// Stop 停止回收循环并等待退出
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// tick 执行一轮扫描。抢不到分布式锁说明其他实例正在扫描，跳过本轮
func (r *Reconciler) tick() {
	if r.locks != nil {
		err := r.locks.TryWithLock(tickLockName, tickLockExpiry, r.ReleaseExpired)
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return
		}
		if err != nil {
			log.Printf("场地回收扫描失败: %v", err)
		}
		return
	}

	if err := r.ReleaseExpired(); err != nil {
		log.Printf("场地回收扫描失败: %v", err)
	}
}

// ReleaseExpired 释放所有已批准且已过结束时间的预约占用的场地。
// 单条失败不影响其余条目，重复执行是幂等的
func (r *Reconciler) ReleaseExpired() error {
	var bookings []models.Booking
	err := r.db.
		Where("status = ? AND end_time <= ?", models.BookingApproved, time.Now()).
		Find(&bookings).Error
	if err != nil {
		return err
	}

	if len(bookings) == 0 {
		return nil
	}

	released := 0
	for _, booking := range bookings {
		// 同一场地还有未到期的已批准预约时不释放
		var ongoing int64
		err := r.db.Model(&models.Booking{}).
			Where("facility_id = ? AND status = ? AND end_time > ?",
				booking.FacilityID, models.BookingApproved, time.Now()).
			Count(&ongoing).Error
		if err != nil {
			log.Printf("检查场地 %d 在用预约失败 (预约 %d): %v", booking.FacilityID, booking.ID, err)
			continue
		}
		if ongoing > 0 {
			continue
		}

		// 只把仍处于booked状态的场地翻回available，
		// 避免覆盖维护中等人工设置的状态
		err = r.db.Model(&models.Facility{}).
			Where("id = ? AND status = ?", booking.FacilityID, models.FacilityBooked).
			Update("status", models.FacilityAvailable).Error
		if err != nil {
			log.Printf("释放场地 %d 失败 (预约 %d): %v", booking.FacilityID, booking.ID, err)
			continue
		}
		released++
	}

	log.Printf("场地回收扫描完成: 检查 %d 条到期预约, 释放 %d 个场地", len(bookings), released)
	return nil
}
