package service

import (
	"sync"
	"time"

	"stimrun/internal/engine"
)

const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateAborted   = "aborted"
	StateFailed    = "failed"
)

type LoopPosition struct {
	N     int `json:"n"`
	Total int `json:"total"`
}

// Status 控制台看到的会话快照
type Status struct {
	State         string                  `json:"state"`
	SessionID     uint                    `json:"session_id,omitempty"`
	Participant   string                  `json:"participant,omitempty"`
	ExpName       string                  `json:"exp_name,omitempty"`
	Date          string                  `json:"date,omitempty"`
	FrameRate     float64                 `json:"frame_rate,omitempty"`
	Routine       string                  `json:"routine,omitempty"`
	Frame         int                     `json:"frame"`
	Flips         int                     `json:"flips"`
	Dropped       int                     `json:"dropped"`
	Loops         map[string]LoopPosition `json:"loops,omitempty"`
	NumberCorrect int                     `json:"number_correct"`
	TrialsDone    int                     `json:"trials_done"`
	StartedAt     *time.Time              `json:"started_at,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// Progress 运行 goroutine 写、控制台 goroutine 读
type Progress struct {
	mu sync.Mutex
	st Status
}

func NewProgress() *Progress {
	return &Progress{st: Status{State: StateIdle}}
}

func (p *Progress) Begin(participant, expName, date string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.st = Status{
		State:       StateRunning,
		Participant: participant,
		ExpName:     expName,
		Date:        date,
		Loops:       map[string]LoopPosition{},
		StartedAt:   &now,
	}
}

func (p *Progress) SetSession(id uint, frameRate float64) {
	p.mu.Lock()
	p.st.SessionID = id
	p.st.FrameRate = frameRate
	p.mu.Unlock()
}

func (p *Progress) Frame(routine string, frame, flips, dropped int) {
	p.mu.Lock()
	p.st.Routine = routine
	p.st.Frame = frame
	p.st.Flips = flips
	p.st.Dropped = dropped
	p.mu.Unlock()
}

func (p *Progress) Loop(name string, n, total int) {
	p.mu.Lock()
	if p.st.Loops == nil {
		p.st.Loops = map[string]LoopPosition{}
	}
	p.st.Loops[name] = LoopPosition{N: n, Total: total}
	p.mu.Unlock()
}

func (p *Progress) Score(t engine.Tally) {
	p.mu.Lock()
	p.st.NumberCorrect = t.Correct
	p.st.TrialsDone = t.Trials
	p.mu.Unlock()
}

func (p *Progress) End(state string, err error) {
	p.mu.Lock()
	p.st.State = state
	if err != nil {
		p.st.Error = err.Error()
	}
	p.mu.Unlock()
}

// Snapshot 拷贝一份，map 也复制
func (p *Progress) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.st
	if p.st.Loops != nil {
		st.Loops = make(map[string]LoopPosition, len(p.st.Loops))
		for k, v := range p.st.Loops {
			st.Loops[k] = v
		}
	}
	return st
}
