package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dfmap/dfmap/internal/model/convert"
	"github.com/dfmap/dfmap/pkg/core"
)

// Export is the on-disk form of the memory backend.
type Export struct {
	Callers []core.CallerRecord `json:"callers"`
	RFFs    []core.RFFSite      `json:"rffs"`
}

func (b *Backend) buildExport() Export {
	export := Export{
		Callers: make([]core.CallerRecord, 0, len(b.order)),
		RFFs:    make([]core.RFFSite, 0, len(b.rffIDs)),
	}
	for _, id := range b.order {
		export.Callers = append(export.Callers, convert.CallerToCore(*b.callers[id]))
	}
	for _, id := range b.rffIDs {
		export.RFFs = append(export.RFFs, convert.RFFToCore(b.rffs[id]))
	}
	return export
}

func compressed(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// writeExport writes to a temporary file first so a crash never leaves a
// truncated export behind.
func writeExport(path string, data Export) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if compressed(path) {
		gz = gzip.NewWriter(f)
		w = gz
	}

	encodeErr := json.NewEncoder(w).Encode(data)
	if gz != nil {
		if err := gz.Close(); err != nil && encodeErr == nil {
			encodeErr = err
		}
	}
	if err := f.Close(); err != nil && encodeErr == nil {
		encodeErr = err
	}
	if encodeErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write export: %w", encodeErr)
	}
	return os.Rename(tmp, path)
}

// readExport loads an export. ok is false when the file does not exist.
func readExport(path string) (data Export, ok bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Export{}, false, nil
	}
	if err != nil {
		return Export{}, false, err
	}
	defer f.Close()

	var r io.Reader = f
	if compressed(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Export{}, false, err
		}
		defer gz.Close()
		r = gz
	}

	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return Export{}, false, err
	}
	return data, true, nil
}
