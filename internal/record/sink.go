package record

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/gorm"

	"stimrun/internal/model"
)

// Memory 只保存在内存里，测试和控制台用
type Memory struct {
	mu   sync.Mutex
	rows []Record
}

func (m *Memory) Append(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Rows() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.rows...)
}

// CSV 宽表：列为所有行的并集，按首次出现的顺序
type CSV struct {
	Path string
	rows []Record
}

func NewCSV(path string) *CSV { return &CSV{Path: path} }

func (c *CSV) Append(r Record) error {
	c.rows = append(c.rows, r)
	return nil
}

func (c *CSV) Close() error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	f, err := os.Create(c.Path)
	if err != nil {
		return fmt.Errorf("创建 CSV 失败: %w", err)
	}
	defer f.Close()

	header := Columns(c.rows)
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	line := make([]string, len(header))
	for _, r := range c.rows {
		for i, col := range header {
			line[i] = FormatValue(r.Values[col])
		}
		if err := w.Write(line); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("写入 CSV 失败: %w", err)
	}
	return nil
}

// Columns 多行的列并集
func Columns(rows []Record) []string {
	seen := map[string]bool{}
	var cols []string
	for _, r := range rows {
		for _, c := range r.Columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}

// JSON 整个会话序列化成一个文件
type JSON struct {
	Path string
	rows []Record
}

func NewJSON(path string) *JSON { return &JSON{Path: path} }

func (j *JSON) Append(r Record) error {
	j.rows = append(j.rows, r)
	return nil
}

type jsonDump struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

func (j *JSON) Close() error {
	dump := jsonDump{Columns: Columns(j.rows), Rows: make([]map[string]interface{}, len(j.rows))}
	for i, r := range j.rows {
		dump.Rows[i] = r.Values
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.Path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	return os.WriteFile(j.Path, data, 0o644)
}

// DB 每行一条 model.TrialRow，Close 时在一个事务里写入
type DB struct {
	db        *gorm.DB
	sessionID uint
	rows      []model.TrialRow
}

func NewDB(db *gorm.DB, sessionID uint) *DB {
	return &DB{db: db, sessionID: sessionID}
}

func (d *DB) Append(r Record) error {
	values := make(map[string]interface{}, len(r.Columns))
	for _, c := range r.Columns {
		values[c] = r.Values[c]
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("序列化第 %d 行失败: %w", r.Index, err)
	}
	row := model.TrialRow{SessionID: d.sessionID, EntryIndex: r.Index, DataJSON: string(data)}
	if name, corr, responded, ok := r.Score(); ok {
		row.Scored = true
		row.Corr = corr
		row.Responded = responded
		row.Response = FormatValue(r.Values[name+".keys"])
	}
	d.rows = append(d.rows, row)
	return nil
}

func (d *DB) Close() error {
	if len(d.rows) == 0 {
		return nil
	}
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(d.rows, 100).Error; err != nil {
			return fmt.Errorf("写入试次记录失败: %w", err)
		}
		return nil
	})
}
