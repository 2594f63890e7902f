package record

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"stimrun/internal/clock"
	"stimrun/internal/model"
)

type fakeLoop struct {
	name string
	n    int
}

func (l *fakeLoop) Name() string { return l.name }

func (l *fakeLoop) Snapshot() []Field {
	return []Field{{l.name + ".thisN", l.n}}
}

type fakeFlip struct {
	queue []func()
	last  time.Duration
}

func (f *fakeFlip) OnNextFlip(fn func()) { f.queue = append(f.queue, fn) }

func (f *fakeFlip) LastFlipTime(*clock.Clock) time.Duration { return f.last }

func (f *fakeFlip) flip(at time.Duration) {
	f.last = at
	q := f.queue
	f.queue = nil
	for _, fn := range q {
		fn()
	}
}

func TestNextEntryOrdersColumnsAndSnapshotsLoops(t *testing.T) {
	mem := &Memory{}
	h := NewHandler([]Field{{"participant", "123456"}}, nil, mem)
	trials := &fakeLoop{name: "trials"}
	h.AddLoop(trials)

	for i := 0; i < 3; i++ {
		trials.n = i
		h.AddData("press.keys", []string{"space"})
		h.AddData("press.corr", 1)
		h.AddData("press.corr", i%2)
		if err := h.NextEntry(); err != nil {
			t.Fatal(err)
		}
	}

	rows := mem.Rows()
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	want := []string{"press.keys", "press.corr", "trials.thisN", "participant"}
	for i, c := range want {
		if rows[2].Columns[i] != c {
			t.Fatalf("columns = %v, want %v", rows[2].Columns, want)
		}
	}
	if rows[2].Values["trials.thisN"] != 2 || rows[1].Values["press.corr"] != 1 {
		t.Fatalf("row values = %v / %v", rows[2].Values, rows[1].Values)
	}

	h.RemoveLoop(trials)
	if err := h.NextEntry(); err != nil {
		t.Fatal(err)
	}
	last := h.Records()[3]
	if _, ok := last.Get("trials.thisN"); ok {
		t.Fatal("removed loop still contributes columns")
	}
	if len(last.Columns) != 1 {
		t.Fatalf("pending data should be cleared after NextEntry, got %v", last.Columns)
	}
}

func TestTimestampOnFlip(t *testing.T) {
	h := NewHandler(nil, nil)
	ff := &fakeFlip{}
	h.TimestampOnFlip(ff, "text.started")
	ff.flip(1500 * time.Millisecond)
	if err := h.NextEntry(); err != nil {
		t.Fatal(err)
	}
	if v, _ := h.Records()[0].Get("text.started"); v != 1.5 {
		t.Fatalf("text.started = %v", v)
	}
}

func TestScore(t *testing.T) {
	rec := Record{
		Columns: []string{"key_resp_3.keys", "press.keys", "press.corr", "press.rt"},
		Values: map[string]interface{}{
			"key_resp_3.keys": "p", "press.keys": []string{"space"}, "press.corr": 1, "press.rt": []float64{0.4},
		},
	}
	name, corr, responded, ok := rec.Score()
	if !ok || name != "press" || corr != 1 || !responded {
		t.Fatalf("Score = %q %d %v %v", name, corr, responded, ok)
	}
	if _, _, _, ok := (Record{Columns: []string{"key_resp_3.keys"}}).Score(); ok {
		t.Fatal("row without .corr column should not be scored")
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{0.25, "0.25"},
		{3, "3"},
		{[]string{"space", "q"}, "['space', 'q']"},
		{[]float64{0.4, 0.9}, "[0.4, 0.9]"},
		{true, "True"},
	}
	for _, tc := range cases {
		if got := FormatValue(tc.in); got != tc.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCSVAndJSONSinksWriteOnClose(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "p.csv")
	jsonPath := filepath.Join(dir, "out", "p.json")
	h := NewHandler(nil, nil, NewCSV(csvPath), NewJSON(jsonPath))

	h.AddData("a", 1)
	_ = h.NextEntry()
	h.AddData("b", "x")
	h.AddData("a", 2)
	_ = h.NextEntry()

	if _, err := os.Stat(csvPath); !os.IsNotExist(err) {
		t.Fatal("CSV should not exist before Close")
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 || lines[0][0] != "a" || lines[0][1] != "b" {
		t.Fatalf("csv = %v", lines)
	}
	if lines[1][1] != "" || lines[2][0] != "2" || lines[2][1] != "x" {
		t.Fatalf("csv = %v", lines)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var dump struct {
		Columns []string
		Rows    []map[string]interface{}
	}
	if err := json.Unmarshal(data, &dump); err != nil {
		t.Fatal(err)
	}
	if len(dump.Rows) != 2 || len(dump.Columns) != 2 {
		t.Fatalf("json dump = %+v", dump)
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&model.Session{}, &model.TrialRow{}); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestDBSink(t *testing.T) {
	db := openTestDB(t)
	sess := model.Session{ExpName: "GTDT_P", Participant: "123456", Status: "running"}
	if err := db.Create(&sess).Error; err != nil {
		t.Fatal(err)
	}

	h := NewHandler(nil, nil, NewDB(db, sess.ID))
	h.AddData("press.keys", []string{"space"})
	h.AddData("press.corr", 1)
	h.AddData("press.rt", []float64{0.4})
	_ = h.NextEntry()
	h.AddData("key_resp_6.keys", "p")
	_ = h.NextEntry()

	var n int64
	db.Model(&model.TrialRow{}).Count(&n)
	if n != 0 {
		t.Fatal("rows should only be written on Close")
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	var rows []model.TrialRow
	if err := db.Where("session_id = ?", sess.ID).Order("entry_index").Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if !rows[0].Scored || rows[0].Corr != 1 || !rows[0].Responded || rows[0].Response != "['space']" {
		t.Fatalf("trial row = %+v", rows[0])
	}
	if rows[1].Scored {
		t.Fatalf("non-trial row flagged as scored: %+v", rows[1])
	}
}
