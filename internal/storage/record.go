package storage

// Record is one encrypted note row. Content holds a ciphertext envelope, never plaintext.
type Record struct {
	UID       int64   `gorm:"column:uid;primaryKey;autoIncrement" json:"uid"`
	Content   *string `gorm:"column:content" json:"content"`
	IsPinned  bool    `gorm:"column:is_pinned;not null;default:false" json:"isPinned"`
	CreatedAt *int64  `gorm:"column:created_at;autoCreateTime:false" json:"createdAt"`
	DeletedAt *int64  `gorm:"column:deleted_at;index" json:"deletedAt"`
}

func (Record) TableName() string {
	return "notes"
}

// ActiveAt reports whether the record is visible at nowMillis.
func (r Record) ActiveAt(nowMillis int64) bool {
	return r.DeletedAt == nil || *r.DeletedAt > nowMillis
}
