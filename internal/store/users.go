package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/ws"
)

var _ ws.UserDirectory = (*Users)(nil)

// Users 用户目录
type Users struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUsers 创建用户目录
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db, now: time.Now}
}

// SetOnlineStatus 更新在线标记，下线时记录 last_seen
func (u *Users) SetOnlineStatus(ctx context.Context, userID uuid.UUID, online bool) error {
	updates := map[string]any{"is_online": online}
	if !online {
		updates["last_seen"] = u.now()
	}
	err := u.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(updates).Error
	if err != nil {
		return apperr.ErrCollaborator.WithError(err)
	}
	return nil
}

// ResetOnline 将仍标记为在线的用户全部置为离线，返回受影响数
//
// 进程启动时尚无连接，残留的在线标记来自上一次未正常退出。
func (u *Users) ResetOnline(ctx context.Context) (int64, error) {
	res := u.db.WithContext(ctx).Model(&User{}).
		Where("is_online = ?", true).
		Updates(map[string]any{"is_online": false, "last_seen": u.now()})
	if res.Error != nil {
		return 0, apperr.ErrCollaborator.WithError(res.Error)
	}
	return res.RowsAffected, nil
}
