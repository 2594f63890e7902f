package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"stimrun/internal/clock"
	"stimrun/internal/conditions"
	"stimrun/internal/config"
	"stimrun/internal/db"
	"stimrun/internal/engine"
	"stimrun/internal/flip"
	"stimrun/internal/input"
	"stimrun/internal/log"
	"stimrun/internal/model"
	"stimrun/internal/record"
	"stimrun/internal/task"
)

// ErrNoDatabase 未配置数据库
var ErrNoDatabase = errors.New("database not configured")

// DateFormat 输出文件名里的日期
const DateFormat = "2006-01-02_15h04.05"

type SessionRequest struct {
	Participant string `json:"participant"`
	Session     string `json:"session"`
	Seed        int64  `json:"seed"`
}

type SessionResult struct {
	SessionID   uint     `json:"session_id"`
	ExpName     string   `json:"exp_name"`
	Participant string   `json:"participant"`
	Session     string   `json:"session"`
	Date        string   `json:"date"`
	Seed        int64    `json:"seed"`
	FrameRate   float64  `json:"frame_rate"`
	Flips       int      `json:"flips"`
	Dropped     int      `json:"dropped"`
	Records     int      `json:"records"`
	Summary     Summary  `json:"summary"`
	CSVPath     string   `json:"csv_path"`
	JSONPath    string   `json:"json_path"`
	SummaryPath string   `json:"summary_path"`
	Errors      []string `json:"errors"`
}

// Device 显示后端 + 它推送按键用的事件缓冲
type Device struct {
	Backend flip.Backend
	Hub     *input.Hub
	Source  clock.Source
}

type SessionRunner struct {
	cfg      *config.Config
	dev      Device
	progress *Progress
	abort    *input.Flag
	logger   *log.Logger
	now      func() time.Time
}

func NewSessionRunner(cfg *config.Config, dev Device, progress *Progress, abort *input.Flag, logger *log.Logger) *SessionRunner {
	if logger == nil {
		logger = log.Discard()
	}
	if dev.Source == nil {
		dev.Source = clock.System
	}
	if abort == nil {
		abort = &input.Flag{}
	}
	if progress == nil {
		progress = NewProgress()
	}
	return &SessionRunner{
		cfg:      cfg,
		dev:      dev,
		progress: progress,
		abort:    abort,
		logger:   logger.With("session"),
		now:      time.Now,
	}
}

// Run 跑一个被试的完整练习流程。中止时返回包裹 engine.ErrAborted 的错误，且不写任何数据文件
func (r *SessionRunner) Run(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	exp := r.cfg.Experiment
	if req.Participant == "" {
		req.Participant = exp.Participant
	}
	if req.Participant == "" {
		req.Participant = fmt.Sprintf("%06d", rand.Intn(1000000))
	}
	if req.Session == "" {
		req.Session = exp.Session
	}
	if req.Seed == 0 {
		req.Seed = exp.Seed
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	date := r.now().Format(DateFormat)

	result := &SessionResult{
		ExpName:     exp.Name,
		Participant: req.Participant,
		Session:     req.Session,
		Date:        date,
		Seed:        req.Seed,
	}
	r.progress.Begin(req.Participant, exp.Name, date)

	rows, err := conditions.Load(exp.Conditions)
	if err != nil {
		r.progress.End(StateFailed, err)
		return nil, fmt.Errorf("加载条件表失败: %w", err)
	}

	var sess *model.Session
	if db.DB != nil {
		sess = &model.Session{
			ExpName:     exp.Name,
			Participant: req.Participant,
			SessionNo:   req.Session,
			DateStamp:   date,
			Seed:        req.Seed,
			Status:      StateRunning,
		}
		if err := db.DB.WithContext(ctx).Create(sess).Error; err != nil {
			r.progress.End(StateFailed, err)
			return nil, fmt.Errorf("创建会话记录失败: %w", err)
		}
		result.SessionID = sess.ID
	}

	global := clock.New(r.dev.Source)
	sched := flip.NewScheduler(r.dev.Backend, global, r.logger.With("flip"))
	if n := r.cfg.Display.MeasureFrames; n > 0 {
		rate, err := sched.MeasureFrameRate(ctx, n)
		if err != nil {
			// 测不出来时按配置的刷新率继续
			r.logger.Warnf("测量刷新率失败: %v", err)
		} else {
			result.FrameRate = rate
		}
	}
	r.progress.SetSession(result.SessionID, result.FrameRate)

	base := filepath.Join(exp.OutputDir, fmt.Sprintf("%s_%s_%s", req.Participant, exp.Name, date))
	result.CSVPath = base + ".csv"
	result.JSONPath = base + ".json"
	result.SummaryPath = base + "_summary.md"

	extra := []record.Field{
		{Key: "participant", Value: req.Participant},
		{Key: "session", Value: req.Session},
		{Key: "date", Value: date},
		{Key: "expName", Value: exp.Name},
		{Key: "frameRate", Value: result.FrameRate},
	}
	sinks := []record.Sink{record.NewCSV(result.CSVPath), record.NewJSON(result.JSONPath)}
	if sess != nil {
		sinks = append(sinks, record.NewDB(db.DB, sess.ID))
	}
	data := record.NewHandler(extra, r.logger.With("data"), sinks...)

	abort := input.AnyOf(
		input.NewEscapeKey(input.NewKeyboard(r.dev.Hub, r.dev.Source)),
		r.abort,
		input.Context(ctx),
	)
	runner := engine.NewRunner(sched, clock.New(r.dev.Source), abort,
		engine.WithTolerance(r.cfg.Timing.Tolerance()),
		engine.WithLogger(r.logger.With("routine")),
		engine.WithRecorder(data),
		engine.WithObserver(func(routine string, frame int) {
			r.progress.Frame(routine, frame, sched.Frames(), sched.Dropped())
		}),
	)

	if r.cfg.Pilot.Enabled {
		if hooked, ok := r.dev.Backend.(interface{ OnFlip(func(int, time.Time)) }); ok {
			interval := time.Duration(r.cfg.Pilot.Interval * float64(time.Second))
			hooked.OnFlip(input.NewPilot(r.dev.Hub, r.cfg.Pilot.Keys, interval).Deliver)
			r.logger.Infof("自动按键已开启: %v 每 %v", r.cfg.Pilot.Keys, interval)
		} else {
			r.logger.Warnf("显示后端不支持自动按键")
		}
	}

	gtdt, err := task.New(task.Config{
		Conditions:       rows,
		Seed:             req.Seed,
		InstructionImage: exp.Images.Instruction,
		PractiseEndImage: exp.Images.PractiseEnd,
	}, task.Env{
		Runner:  runner,
		Hub:     r.dev.Hub,
		Source:  r.dev.Source,
		Data:    data,
		Logger:  r.logger.With("gtdt"),
		OnLoop:  r.progress.Loop,
		OnScore: r.progress.Score,
	})
	if err != nil {
		r.progress.End(StateFailed, err)
		return nil, err
	}

	r.logger.Infof("开始: participant=%s session=%s seed=%d 试次/轮=%d", req.Participant, req.Session, req.Seed, gtdt.NTrials())
	runErr := gtdt.Run(ctx)
	result.Flips, result.Dropped = sched.Frames(), sched.Dropped()
	if runErr != nil {
		state := StateFailed
		if errors.Is(runErr, engine.ErrAborted) {
			state = StateAborted
		}
		r.progress.End(state, runErr)
		r.markSession(sess, state, result)
		return nil, runErr
	}

	if err := data.Close(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("写入数据失败: %v", err))
	}
	records := data.Records()
	result.Records = len(records)
	result.Summary = Summarize(records)

	if err := os.MkdirAll(exp.OutputDir, 0o755); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("创建输出目录失败: %v", err))
	}
	if err := os.WriteFile(result.SummaryPath, []byte(RenderSummaryMarkdown(result)), 0o644); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("写入摘要失败: %v", err))
	}
	r.markSession(sess, StateCompleted, result)
	r.progress.End(StateCompleted, nil)

	r.logger.Infof("完成: %d 行, 正确 %d/%d, 掉帧 %d", result.Records, result.Summary.Correct, result.Summary.Trials, result.Dropped)
	return result, nil
}

func (r *SessionRunner) markSession(sess *model.Session, state string, result *SessionResult) {
	if sess == nil {
		return
	}
	updates := map[string]interface{}{"status": state, "frame_rate": result.FrameRate}
	if state == StateCompleted {
		updates["result_path"] = result.CSVPath
	}
	if err := db.DB.Model(sess).Updates(updates).Error; err != nil {
		r.logger.Errorf("更新会话 %d 状态失败: %v", sess.ID, err)
	}
}
