package download

import (
	"fmt"

	"github.com/dgnsrekt/options-screener/internal/data"
)

// Task is one ticker's chain for one trading date.
type Task struct {
	Ticker string
	Date   string
}

// Exists reports whether the chain is already on disk in baseDir, compressed or not.
func (t Task) Exists(baseDir string) bool {
	_, ok := data.FindSnapshot(baseDir, t.Date, t.Ticker)
	return ok
}

func (t Task) String() string {
	return fmt.Sprintf("%s/%s", t.Date, t.Ticker)
}

type TaskResult struct {
	Task      Task
	Success   bool
	Skipped   bool
	NotFound  bool
	BytesSize int64
	Error     error
}

// Plan expands dates and tickers into tasks, date-major.
func Plan(dates, tickers []string) []Task {
	tasks := make([]Task, 0, len(dates)*len(tickers))
	for _, d := range dates {
		for _, t := range tickers {
			tasks = append(tasks, Task{Ticker: data.NormalizeTicker(t), Date: d})
		}
	}
	return tasks
}
