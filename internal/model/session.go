package model

import (
	"time"

	"gorm.io/gorm"
)

// Session 一次被试的实验执行
type Session struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ExpName     string `gorm:"type:varchar(100);not null;index" json:"exp_name"`
	Participant string `gorm:"type:varchar(50);not null;index" json:"participant"`
	SessionNo   string `gorm:"type:varchar(20)" json:"session"`
	DateStamp   string `gorm:"type:varchar(40)" json:"date"`
	Seed        int64  `json:"seed"`
	// 实测刷新率，测不出来为 0
	FrameRate float64 `json:"frame_rate"`
	// running/completed/aborted
	Status     string `gorm:"type:varchar(20);index" json:"status"`
	ResultPath string `gorm:"type:varchar(500)" json:"result_path"`
}

// TrialRow 数据处理器的一行
type TrialRow struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SessionID  uint `gorm:"not null;index" json:"session_id"`
	EntryIndex int  `gorm:"not null" json:"entry_index"`
	// 有评分列的行才是试次行
	Scored    bool   `gorm:"index" json:"scored"`
	Response  string `gorm:"type:varchar(100)" json:"response"`
	Corr      int    `json:"corr"`
	Responded bool   `json:"responded"`
	// 整行按列序列化
	DataJSON string `gorm:"type:text" json:"data_json"`
}
