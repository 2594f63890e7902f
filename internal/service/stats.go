package service

import (
	"fmt"

	"stimrun/internal/db"
	"stimrun/internal/model"
	"stimrun/internal/record"
)

// Summary 只做计数，不做统计检验
type Summary struct {
	Trials    int     `json:"trials"`
	Responded int     `json:"responded"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Accuracy  float64 `json:"accuracy"`
}

// Summarize 只统计带评分列的试次行
func Summarize(records []record.Record) Summary {
	var s Summary
	for _, r := range records {
		_, corr, responded, ok := r.Score()
		if !ok {
			continue
		}
		s.add(corr, responded)
	}
	s.finish()
	return s
}

// SummarizeRows 数据库里的试次行
func SummarizeRows(rows []model.TrialRow) Summary {
	var s Summary
	for _, r := range rows {
		if !r.Scored {
			continue
		}
		s.add(r.Corr, r.Responded)
	}
	s.finish()
	return s
}

// ComputeSessionSummary 只统计本 session_id
func ComputeSessionSummary(sessionID uint) (Summary, error) {
	if db.DB == nil {
		return Summary{}, ErrNoDatabase
	}
	var rows []model.TrialRow
	if err := db.DB.Where("session_id = ? AND scored = ?", sessionID, true).Find(&rows).Error; err != nil {
		return Summary{}, fmt.Errorf("查询试次失败: %w", err)
	}
	return SummarizeRows(rows), nil
}

func (s *Summary) add(corr int, responded bool) {
	s.Trials++
	if responded {
		s.Responded++
	}
	if corr == 1 {
		s.Correct++
	} else {
		s.Incorrect++
	}
}

func (s *Summary) finish() {
	if s.Trials > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Trials)
	}
}
