// Package conditions 读取条件表：每行一组按列名取值的试次参数。
package conditions

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrMalformed 条件表格式错误，属于启动期致命错误
var ErrMalformed = errors.New("malformed condition table")

// Row 条件表的一行，按列名显式取值
type Row struct {
	columns []string
	values  map[string]string
}

func NewRow(columns []string, values []string) Row {
	r := Row{columns: append([]string(nil), columns...), values: make(map[string]string, len(columns))}
	for i, c := range columns {
		if i < len(values) {
			r.values[c] = values[i]
		} else {
			r.values[c] = ""
		}
	}
	return r
}

// Columns 列名，表头顺序
func (r Row) Columns() []string { return r.columns }

// IsZero 占位行（没有条件表时每次迭代拿到的行）
func (r Row) IsZero() bool { return len(r.columns) == 0 }

func (r Row) Get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

func (r Row) String(name string) string {
	return r.values[name]
}

func (r Row) Float(name string) (float64, error) {
	v, ok := r.values[name]
	if !ok {
		return 0, fmt.Errorf("条件表缺少列 %q", name)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("列 %q 的值 %q 不是数字: %w", name, v, err)
	}
	return f, nil
}

// Duration 把以秒为单位的列读成 time.Duration
func (r Row) Duration(name string) (time.Duration, error) {
	f, err := r.Float(name)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("列 %q 的时长 %v 为负", name, f)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// Load 按扩展名读取 .csv 或 .xlsx
func Load(path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("打开条件表失败: %w", err)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, "")
	default:
		return nil, fmt.Errorf("%w: 不支持的文件类型 %q", ErrMalformed, filepath.Ext(path))
	}
}

func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return build(records)
}

// LoadXLSX sheet 为空时读第一个工作表
func LoadXLSX(path, sheet string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("打开条件表失败: %w", err)
	}
	defer f.Close()
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取工作表 %q: %v", ErrMalformed, sheet, err)
	}
	return build(records)
}

func build(records [][]string) ([]Row, error) {
	// 跳过表头前的空行
	for len(records) > 0 && blank(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: 没有表头", ErrMalformed)
	}
	header := make([]string, 0, len(records[0]))
	seen := map[string]bool{}
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			if i == len(records[0])-1 {
				break
			}
			return nil, fmt.Errorf("%w: 第 %d 列表头为空", ErrMalformed, i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("%w: 重复的列名 %q", ErrMalformed, h)
		}
		seen[h] = true
		header = append(header, h)
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		if len(rec) > len(header) && !blank(rec[len(header):]) {
			return nil, fmt.Errorf("%w: 第 %d 行的列数多于表头", ErrMalformed, i+2)
		}
		vals := make([]string, len(rec))
		for j, v := range rec {
			vals[j] = strings.TrimSpace(v)
		}
		rows = append(rows, NewRow(header, vals))
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
