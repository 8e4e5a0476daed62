package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kirillkom/docflow/internal/core/uploadqueue"
)

const (
	ansiClearScreen = "\x1b[H\x1b[2J"
	liveRenderEvery = 150 * time.Millisecond
	maxErrorWidth   = 48
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressRenderer draws queue snapshots. On a terminal it redraws a table,
// otherwise it prints one line per status change.
type progressRenderer struct {
	out  io.Writer
	live bool

	mu         sync.Mutex
	lastDraw   time.Time
	lastStatus map[string]uploadqueue.Status
	done       bool
}

func newProgressRenderer(out io.Writer, live bool) *progressRenderer {
	return &progressRenderer{
		out:        out,
		live:       live,
		lastStatus: make(map[string]uploadqueue.Status),
	}
}

func (r *progressRenderer) Render(snap uploadqueue.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}

	if r.live {
		if !snap.Drained() && time.Since(r.lastDraw) < liveRenderEvery {
			return
		}
		r.lastDraw = time.Now()
		fmt.Fprint(r.out, ansiClearScreen)
		fmt.Fprintln(r.out, renderQueueTable(snap))
		fmt.Fprintln(r.out, summaryLine(snap))
		return
	}

	for _, it := range snap.Items {
		if prev, ok := r.lastStatus[it.ID]; ok && prev == it.Status {
			continue
		}
		r.lastStatus[it.ID] = it.Status
		fmt.Fprintln(r.out, itemLine(it))
	}
}

// Final prints the closing table. It shares the lock with Render because the
// last published snapshot may still be drawing when the queue reports idle.
func (r *progressRenderer) Final(snap uploadqueue.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true

	if r.live {
		fmt.Fprint(r.out, ansiClearScreen)
	}
	if len(snap.Items) > 0 {
		fmt.Fprintln(r.out, renderQueueTable(snap))
	}
	fmt.Fprintln(r.out, summaryLine(snap))
}

func renderQueueTable(snap uploadqueue.Snapshot) string {
	headers := []string{"#", "File", "Status", "Progress", "Type", "Department", "Document", "Error"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft}
	rows := make([][]string, 0, len(snap.Items))
	for i, it := range snap.Items {
		var docType, department, errMsg string
		if it.Result != nil {
			docType = displayLabel(it.Result.DocumentType)
			department = it.Result.Department
		}
		if it.Err != nil {
			errMsg = truncate(it.Err.Message, maxErrorWidth)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			filepath.Base(it.Name),
			string(it.Status),
			progressCell(it),
			docType,
			department,
			it.DocumentID,
			errMsg,
		})
	}
	return renderTable(headers, rows, aligns)
}

func progressCell(it uploadqueue.ItemView) string {
	switch it.Status {
	case uploadqueue.StatusDispatching, uploadqueue.StatusAwaitingResult, uploadqueue.StatusCompleted:
		return fmt.Sprintf("%d%%", it.Progress)
	default:
		return ""
	}
}

func itemLine(it uploadqueue.ItemView) string {
	line := fmt.Sprintf("%-16s %s", it.Status, filepath.Base(it.Name))
	switch {
	case it.Result != nil:
		line += fmt.Sprintf(" -> %s / %s (%s)", displayLabel(it.Result.DocumentType), it.Result.Department, it.Result.DocumentID)
	case it.Err != nil:
		line += fmt.Sprintf(": %s", it.Err.Message)
		if it.DocumentID != "" {
			line += fmt.Sprintf(" (document %s)", it.DocumentID)
		}
	}
	return line
}

func summaryLine(snap uploadqueue.Snapshot) string {
	parts := []string{
		fmt.Sprintf("%d pending", snap.Pending),
		fmt.Sprintf("%d active/%d", snap.Active, snap.Limit),
		fmt.Sprintf("%d completed", snap.Completed),
		fmt.Sprintf("%d failed", snap.Failed),
	}
	if snap.Cancelled > 0 {
		parts = append(parts, fmt.Sprintf("%d cancelled", snap.Cancelled))
	}
	if snap.Rejected > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", snap.Rejected))
	}
	return strings.Join(parts, ", ")
}

// displayLabel turns identifiers such as "purchase_order" into "Purchase Order".
func displayLabel(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return ""
	}
	return cases.Title(language.Und).String(value)
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}
