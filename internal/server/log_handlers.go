package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	defaultLogLines = 100
	maxLogLines     = 10000
)

// LogHandlers serves the tail of the rotating log file
type LogHandlers struct {
	logPath string
	log     zerolog.Logger
}

// NewLogHandlers creates log handlers for logPath. An empty path means file logging is off.
func NewLogHandlers(logPath string, log zerolog.Logger) *LogHandlers {
	return &LogHandlers{
		logPath: logPath,
		log:     log.With().Str("component", "log_handlers").Logger(),
	}
}

// LogContentResponse represents log content
type LogContentResponse struct {
	File   string   `json:"file"`
	Lines  []string `json:"lines"`
	Total  int      `json:"total"`
	Status string   `json:"status"`
}

// HandleGetLogs handles GET /api/system/logs?lines=&level=&search=
func (h *LogHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.serveTail(w, parseLines(q.Get("lines"), defaultLogLines), strings.ToLower(q.Get("level")), q.Get("search"))
}

// HandleGetErrors handles GET /api/system/logs/errors?lines=
func (h *LogHandlers) HandleGetErrors(w http.ResponseWriter, r *http.Request) {
	h.serveTail(w, parseLines(r.URL.Query().Get("lines"), 500), "error", "")
}

func (h *LogHandlers) serveTail(w http.ResponseWriter, lines int, level, search string) {
	if h.logPath == "" {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":   "not_found",
			"message": "File logging is disabled (set LOG_FILE=true)",
		})
		return
	}

	logLines, err := tailFile(h.logPath, lines)
	if errors.Is(err, os.ErrNotExist) {
		logLines, err = []string{}, nil
	}
	if err != nil {
		h.log.Error().Err(err).Str("file", h.logPath).Msg("Failed to read log file")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "internal_error",
			"message": "Failed to read logs",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, LogContentResponse{
		File:   h.logPath,
		Lines:  filterLogs(logLines, level, search),
		Total:  len(logLines),
		Status: "ok",
	})
}

func parseLines(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return min(n, maxLogLines)
}

// tailFile returns the last n lines of path
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	start := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(ring) < n {
			ring = append(ring, line)
			continue
		}
		ring[start] = line
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}

	return append(ring[start:], ring[:start]...), nil
}

// filterLogs filters log lines by level and search term
func filterLogs(lines []string, level, search string) []string {
	if level == "" && search == "" {
		return lines
	}

	search = strings.ToLower(search)
	filtered := make([]string, 0)
	for _, line := range lines {
		if level != "" && !lineMatchesLevel(line, level) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(line), search) {
			continue
		}
		filtered = append(filtered, line)
	}
	return filtered
}

// lineMatchesLevel supports zerolog JSON lines and console-formatted lines
func lineMatchesLevel(line, level string) bool {
	var entry struct {
		Level string `json:"level"`
	}
	if strings.HasPrefix(line, "{") && json.Unmarshal([]byte(line), &entry) == nil && entry.Level != "" {
		return strings.EqualFold(entry.Level, level)
	}

	// Console format abbreviates levels: INF, WRN, ERR, DBG
	abbrev, ok := map[string]string{"debug": "DBG", "info": "INF", "warn": "WRN", "error": "ERR", "fatal": "FTL"}[level]
	if !ok {
		return false
	}
	upper := strings.ToUpper(line)
	return strings.Contains(upper, " "+abbrev+" ") || strings.Contains(upper, "["+strings.ToUpper(level)+"]")
}

// writeJSON writes a JSON response
func (h *LogHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
