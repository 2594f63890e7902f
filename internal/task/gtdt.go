// Package task 渐变目标检测（GTDT）练习流程。
//
// 外层 practise_back 循环：指导语 → 注视点 → 试次循环 → 正确率反馈 → 练习结束页，
// 在练习结束页按 p 退出，按 q 再练一轮。
package task

import (
	"context"
	"fmt"
	"time"

	"stimrun/internal/clock"
	"stimrun/internal/conditions"
	"stimrun/internal/engine"
	"stimrun/internal/input"
	"stimrun/internal/log"
	"stimrun/internal/loop"
	"stimrun/internal/record"
	"stimrun/internal/stim"
)

const (
	// PractiseReps 外层循环的上限，实际靠 practise_end 的 p 结束
	PractiseReps = 999

	fixationDuration = time.Second
	durationColumn   = "asec"
)

type Config struct {
	Conditions       []conditions.Row
	Seed             int64
	InstructionImage string
	PractiseEndImage string
	// 0 表示 PractiseReps
	Reps int
}

// Env 运行流程需要的外部设施
type Env struct {
	Runner *engine.Runner
	Hub    *input.Hub
	Source clock.Source
	Data   *record.Handler
	Logger *log.Logger
	// OnLoop 每次进入循环迭代时调用，total 为 -1 表示不定
	OnLoop func(name string, n, total int)
	// OnScore 每个试次计分后调用
	OnScore func(t engine.Tally)
}

type GTDT struct {
	cfg  Config
	env  Env
	asec []time.Duration

	instruction *engine.Routine
	keyResp3    *engine.Response

	fixation *engine.Routine

	trial *engine.Routine
	timed []*engine.Visual
	press *engine.Response
	tally engine.Tally

	presentCorr *engine.Routine
	corrText    *stim.Text
	keyResp7    *engine.Response

	practiseEnd *engine.Routine
	keyResp6    *engine.Response
}

// New 构建全部刺激和例程；条件表缺少 asec 列或取值非法时返回错误
func New(cfg Config, env Env) (*GTDT, error) {
	if len(cfg.Conditions) == 0 {
		return nil, fmt.Errorf("%w: 条件表没有任何试次", conditions.ErrMalformed)
	}
	asec := make([]time.Duration, len(cfg.Conditions))
	for i, row := range cfg.Conditions {
		d, err := row.Duration(durationColumn)
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 行: %v", conditions.ErrMalformed, i+1, err)
		}
		// 时长 0 在组件上表示不限时，这里必须为正
		if d <= 0 {
			return nil, fmt.Errorf("%w: 第 %d 行: %s 必须大于 0", conditions.ErrMalformed, i+1, durationColumn)
		}
		asec[i] = d
	}
	if cfg.Reps == 0 {
		cfg.Reps = PractiseReps
	}
	if env.Logger == nil {
		env.Logger = log.Discard()
	}

	g := &GTDT{cfg: cfg, env: env, asec: asec}
	kb := func() *input.Keyboard { return input.NewKeyboard(env.Hub, env.Source) }
	first := asec[0]

	// instruction3
	g.keyResp3 = engine.NewResponse("key_resp_3", kb(), []string{"p"}, 0, 0)
	g.instruction = &engine.Routine{Name: "instruction3", Components: []engine.Component{
		engine.NewVisual(stim.NewImage("i3", cfg.InstructionImage, 1.6, 1), 0, 0),
		g.keyResp3,
	}}

	// fixation
	g.fixation = &engine.Routine{Name: "fixation", MaxDuration: fixationDuration, Components: []engine.Component{
		engine.NewVisual(stim.NewText("text", "+", 0.05, stim.White), 0, fixationDuration),
	}}

	// GTDT：四层圆形刺激持续 asec，期间按空格
	bg := engine.NewVisual(stim.NewRect("bg", 0.5, 0.5, stim.White, stim.White), 0, first)
	annular := engine.NewVisual(stim.NewCircle("annular", 0.5, stim.Grey, stim.Grey), 0, first)
	cover := engine.NewVisual(stim.NewCircle("cover", 0.5, stim.White, stim.White), 0, first,
		engine.Opacity(0.5), engine.Contrast(0), engine.LineWidth(1))
	center := engine.NewVisual(stim.NewCircle("center", 0.25, stim.White, stim.White), 0, first)
	g.timed = []*engine.Visual{bg, annular, cover, center}
	g.press = engine.NewResponse("press", kb(), []string{"space"}, 0, first).
		WithAnswer(engine.ParseAnswer("space"))
	g.press.Store = engine.StoreAll
	g.trial = &engine.Routine{Name: "GTDT", Components: []engine.Component{bg, annular, cover, center, g.press}}

	// present_corr
	g.corrText = stim.NewText("practise_corr", "", 0.05, stim.White)
	g.keyResp7 = engine.NewResponse("key_resp_7", kb(), []string{"p"}, 0, 0)
	g.presentCorr = &engine.Routine{Name: "present_corr", Components: []engine.Component{
		engine.NewVisual(g.corrText, 0, 0),
		g.keyResp7,
	}}

	// practise_end
	g.keyResp6 = engine.NewResponse("key_resp_6", kb(), []string{"p", "q"}, 0, 0)
	g.practiseEnd = &engine.Routine{Name: "practise_end", Components: []engine.Component{
		engine.NewVisual(stim.NewImage("image", cfg.PractiseEndImage, 1.6, 1), 0, 0),
		g.keyResp6,
	}}
	return g, nil
}

// NTrials 每轮练习的试次数
func (g *GTDT) NTrials() int { return len(g.asec) }

// Tally 最近一轮练习的累计正确数（只在运行 goroutine 里读）
func (g *GTDT) Tally() engine.Tally { return g.tally }

// Run 运行整个练习流程；中止时返回包裹 engine.ErrAborted 的错误
func (g *GTDT) Run(ctx context.Context) error {
	practise := loop.New("practise_back", g.cfg.Reps, loop.Sequential, nil, g.cfg.Seed)
	g.env.Data.AddLoop(practise)
	defer g.env.Data.RemoveLoop(practise)

	err := practise.Run(ctx, func(ctx context.Context, it *loop.Iteration) error {
		g.notifyLoop(practise, it)
		return g.practiseBlock(ctx, it)
	})
	if err != nil {
		return err
	}
	// 最后再 flip 一次，让挂起的 flip 回调执行完
	return g.env.Runner.Presenter().Flip()
}

func (g *GTDT) practiseBlock(ctx context.Context, it *loop.Iteration) error {
	if err := g.runPrompt(ctx, g.instruction, g.keyResp3); err != nil {
		return err
	}
	if _, err := g.env.Runner.Run(ctx, g.fixation); err != nil {
		return err
	}
	if err := g.runTrials(ctx, it.N); err != nil {
		return err
	}

	// 正确率 = 本轮正确数 / 本轮试次数
	g.corrText.SetText(fmt.Sprintf("Your correct rate is (%.2f), press 'p' to continue", g.tally.Rate()))
	if err := g.runPrompt(ctx, g.presentCorr, g.keyResp7); err != nil {
		return err
	}

	if err := g.runPrompt(ctx, g.practiseEnd, g.keyResp6); err != nil {
		return err
	}
	if k, ok := g.keyResp6.Last(); ok && k.Name == "p" {
		it.Loop.Finish()
		g.env.Logger.Infof("练习结束, 共 %d 轮", it.N+1)
	} else {
		g.env.Logger.Infof("第 %d 轮练习后选择重练", it.N+1)
	}
	return g.env.Data.NextEntry()
}

// runPrompt 跑一个等按键的例程并把按键记到当前行
func (g *GTDT) runPrompt(ctx context.Context, rt *engine.Routine, resp *engine.Response) error {
	if _, err := g.env.Runner.Run(ctx, rt); err != nil {
		return err
	}
	resp.Record(g.env.Data)
	return nil
}

func (g *GTDT) runTrials(ctx context.Context, block int) error {
	trials := loop.New("trials", 1, loop.FullRandom, g.cfg.Conditions, g.cfg.Seed+int64(block))
	g.env.Data.AddLoop(trials)
	defer g.env.Data.RemoveLoop(trials)

	return trials.Run(ctx, func(ctx context.Context, it *loop.Iteration) error {
		g.notifyLoop(trials, it)
		if it.N == 0 {
			g.tally.Reset()
		}
		d := g.asec[it.Index]
		for _, v := range g.timed {
			v.Base().Duration = d
		}
		g.press.Base().Duration = d

		if _, err := g.env.Runner.Run(ctx, g.trial); err != nil {
			return err
		}
		g.press.Record(g.env.Data)
		corr := 0
		if c := g.press.Corr(); c != nil {
			corr = *c
		}
		g.tally.Add(corr)
		g.env.Data.AddData("number_correct", g.tally.Correct)
		if g.env.OnScore != nil {
			g.env.OnScore(g.tally)
		}
		g.env.Logger.Debugf("试次 %d: asec=%v corr=%d 累计=%d", it.N, d, corr, g.tally.Correct)
		return g.env.Data.NextEntry()
	})
}

func (g *GTDT) notifyLoop(l *loop.Loop, it *loop.Iteration) {
	if g.env.OnLoop != nil {
		g.env.OnLoop(l.Name(), it.N, l.NTotal())
	}
}
