package models

import "time"

type RoomType string

const (
	RoomTypePublic  RoomType = "public"
	RoomTypePrivate RoomType = "private"
)

func (t RoomType) Valid() bool {
	return t == RoomTypePublic || t == RoomTypePrivate
}

// RoomStatus 房间生命周期，删除为软删除
type RoomStatus string

const (
	RoomStatusActive  RoomStatus = "active"
	RoomStatusDeleted RoomStatus = "deleted"
)

// RoomStats 聚合统计，只增不减，除非显式重置
type RoomStats struct {
	MessageCount     int64      `json:"message_count"`
	PeakParticipants int        `json:"peak_participants"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
}

// Room 面试房间
type Room struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        RoomType   `json:"type"`
	ContentID   *string    `json:"content_id,omitempty"`
	CreatedBy   string     `json:"created_by"`
	Status      RoomStatus `json:"status"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	DeletedBy   string     `json:"deleted_by,omitempty"`
	Stats       RoomStats  `json:"stats"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (r *Room) IsActive() bool {
	return r.Status == RoomStatusActive
}

// MarkDeleted 软删除
func (r *Room) MarkDeleted(by string, at time.Time) {
	r.Status = RoomStatusDeleted
	r.DeletedAt = &at
	r.DeletedBy = by
	r.UpdatedAt = at
}

// ObserveOccupancy 记录活动时间，在线人数超过峰值时更新峰值
func (r *Room) ObserveOccupancy(active int, at time.Time) {
	if active > r.Stats.PeakParticipants {
		r.Stats.PeakParticipants = active
	}
	if r.Stats.LastActivityAt == nil || at.After(*r.Stats.LastActivityAt) {
		r.Stats.LastActivityAt = &at
	}
}

// RoomDetail 房间详情，附带在线成员与生效配置
type RoomDetail struct {
	*Room
	Participants []*Participant `json:"participants"`
	Settings     *RoomSettings  `json:"settings"`
}

// RoomFilter 列表过滤条件，空值表示不过滤
type RoomFilter struct {
	Type      RoomType
	CreatedBy string
}
