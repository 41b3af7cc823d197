package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		want    string
	}{
		{"basic path", "dfmaplogs", filepath.Join("dfmaplogs", "dfmap.20260212_213836.log")},
		{"relative path with dot", "./dfmaplogs", filepath.Join(".", "dfmaplogs", "dfmap.20260212_213836.log")},
		{"absolute path", filepath.Join("/var", "log", "dfmap"), filepath.Join("/var", "log", "dfmap", "dfmap.20260212_213836.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, "dfmap", sessionStart))
		})
	}
}
