package cache

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
)

var (
	// rs 全局的Redsync实例
	rs *redsync.Redsync
)

// DistributedLockService 分布式锁服务，用于在多实例部署下
// 保证设施回收任务每个周期只有一个实例执行
type DistributedLockService struct {
	rs *redsync.Redsync
}

// InitDistLock 初始化分布式锁
func InitDistLock() {
	// 使用现有的Redis客户端
	client, err := GetClient()
	if err != nil {
		log.Printf("初始化分布式锁失败: %v", err)
		return
	}

	// 创建Redis连接池
	pool := goredis.NewPool(client)

	// 创建Redsync实例
	rs = redsync.New(pool)
	log.Println("分布式锁初始化成功")
}

// GetLockService 获取分布式锁服务实例，Redis不可用时返回nil
func GetLockService() *DistributedLockService {
	if rs == nil {
		InitDistLock()
	}
	if rs == nil {
		return nil
	}
	return &DistributedLockService{rs: rs}
}

// AcquireLock 尝试获取锁，带有超时时间
func (s *DistributedLockService) AcquireLock(lockName string, expiry time.Duration) (mutex *redsync.Mutex, acquired bool, err error) {
	mutex = s.rs.NewMutex(lockName,
		redsync.WithExpiry(expiry),
		redsync.WithTries(1), // 回收任务不等待，抢不到锁就跳过本轮
		redsync.WithDriftFactor(0.01),
	)

	// 尝试获取锁
	err = mutex.Lock()
	if err != nil {
		return nil, false, err
	}

	return mutex, true, nil
}

// ReleaseLock 释放锁
func (s *DistributedLockService) ReleaseLock(mutex *redsync.Mutex) (bool, error) {
	return mutex.Unlock()
}

// isLockHeld 判断获取锁失败是否因为锁已被其他实例持有，
// 其他情况（如Redis连接故障）不能当作正常的抢锁失败
func isLockHeld(err error) bool {
	var taken *redsync.ErrTaken
	var nodeTaken *redsync.ErrNodeTaken
	return errors.Is(err, redsync.ErrFailed) ||
		errors.As(err, &taken) ||
		errors.As(err, &nodeTaken)
}

// TryWithLock 尝试在锁内执行操作。锁被其他实例持有时返回
// ErrLockNotAcquired；Redis故障等其他错误原样向上传递，由调用方记录
func (s *DistributedLockService) TryWithLock(lockName string, expiry time.Duration, action func() error) error {
	mutex, acquired, err := s.AcquireLock(lockName, expiry)
	if err != nil {
		if isLockHeld(err) {
			return ErrLockNotAcquired
		}
		return fmt.Errorf("获取分布式锁失败: %w", err)
	}

	if !acquired {
		return ErrLockNotAcquired
	}

	// 确保解锁
	defer func() {
		_, _ = s.ReleaseLock(mutex)
	}()

	// 执行业务逻辑
	return action()
}
