// internal/processor/exiftool.go
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/metasync/internal/types"
)

/*
 * ExifTool processor.
 *
 * The blob is written to a temporary file (keeping its extension, which
 * exiftool uses to pick the format) and exiftool runs against it:
 *
 *   read:  exiftool -json [-G] [-TAG ...] FILE
 *   write: exiftool -overwrite_original -TAG=VALUE ... FILE
 *
 * -G prefixes keys with their group ("EXIF:Model") and is omitted when the
 * caller asks to ignore prefixes. List values become one -TAG=VALUE argument
 * per item. Every invocation runs under a timeout; a non-zero exit or a
 * timeout fails with types.ErrExtractionFailed carrying exiftool's stderr.
 */

// ExifToolConfig configures the exiftool processor.
type ExifToolConfig struct {
	Path    string        // executable, default "exiftool"
	Timeout time.Duration // per invocation, default 30s
	TempDir string        // default os.TempDir()
}

// ExifTool runs the exiftool binary.
type ExifTool struct {
	cfg    ExifToolConfig
	logger *slog.Logger
}

// NewExifTool creates an exiftool processor.
func NewExifTool(cfg ExifToolConfig, logger *slog.Logger) *ExifTool {
	if cfg.Path == "" {
		cfg.Path = "exiftool"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExifTool{cfg: cfg, logger: logger}
}

// Available reports whether the executable can be found.
func (e *ExifTool) Available() bool {
	_, err := exec.LookPath(e.cfg.Path)
	return err == nil
}

// Read implements Processor.
func (e *ExifTool) Read(ctx context.Context, blob *types.Blob, tagKeys []string, ignorePrefix bool) (map[string]any, error) {
	path, cleanup, err := e.stage(blob)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := e.run(ctx, ReadArgs(path, tagKeys, ignorePrefix))
	if err != nil {
		return nil, err
	}
	return ParseReadOutput(out)
}

// Write implements Processor.
func (e *ExifTool) Write(ctx context.Context, blob *types.Blob, values map[string]any, ignorePrefix bool) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}

	path, cleanup, err := e.stage(blob)
	if err != nil {
		return false, err
	}
	defer cleanup()

	if _, err := e.run(ctx, WriteArgs(path, values, ignorePrefix)); err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("%w: read back %s: %v", types.ErrExtractionFailed, blob.Filename, err)
	}
	if bytes.Equal(data, blob.Data) {
		return false, nil
	}
	blob.Data = data
	return true, nil
}

// stage writes blob content to a temporary file.
func (e *ExifTool) stage(blob *types.Blob) (string, func(), error) {
	if blob == nil {
		return "", nil, fmt.Errorf("%w: no blob", types.ErrExtractionFailed)
	}
	f, err := os.CreateTemp(e.cfg.TempDir, "metasync-*"+filepath.Ext(blob.Filename))
	if err != nil {
		return "", nil, fmt.Errorf("stage blob: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := f.Write(blob.Data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("stage blob: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("stage blob: %w", err)
	}
	return f.Name(), cleanup, nil
}

func (e *ExifTool) run(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.cfg.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	e.logger.Debug("exiftool: invoked",
		slog.Int("args", len(args)),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", err == nil))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: exiftool timed out after %s", types.ErrExtractionFailed, e.cfg.Timeout)
		}
		return nil, fmt.Errorf("%w: exiftool: %v: %s", types.ErrExtractionFailed, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// ReadArgs builds the exiftool arguments for a tag read.
func ReadArgs(path string, tagKeys []string, ignorePrefix bool) []string {
	args := []string{"-json"}
	if !ignorePrefix {
		args = append(args, "-G")
	}
	for _, tag := range tagKeys {
		args = append(args, "-"+tag)
	}
	return append(args, path)
}

// WriteArgs builds the exiftool arguments for a tag write. Tags are sorted
// so the invocation is deterministic. With ignorePrefix the group is dropped
// from each tag name, matching reads without -G, and exiftool picks the
// group to write.
func WriteArgs(path string, values map[string]any, ignorePrefix bool) []string {
	tags := make([]string, 0, len(values))
	for tag := range values {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	args := []string{"-overwrite_original"}
	for _, tag := range tags {
		name := tag
		if ignorePrefix {
			name = bareTag(tag)
		}
		switch v := values[tag].(type) {
		case []any:
			if len(v) == 0 {
				args = append(args, "-"+name+"=")
			}
			for _, item := range v {
				args = append(args, "-"+name+"="+formatValue(item))
			}
		default:
			args = append(args, "-"+name+"="+formatValue(v))
		}
	}
	return append(args, path)
}

// bareTag strips the group prefix: "XMP-dc:Title" becomes "Title".
func bareTag(tag string) string {
	if i := strings.LastIndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

// ParseReadOutput decodes exiftool -json output for a single file.
// SourceFile is dropped. Numbers stay json.Number so large integers keep
// every digit.
func ParseReadOutput(out []byte) (map[string]any, error) {
	var files []map[string]any
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	if err := dec.Decode(&files); err != nil {
		return nil, fmt.Errorf("%w: decode exiftool output: %v", types.ErrExtractionFailed, err)
	}
	if len(files) != 1 {
		return nil, fmt.Errorf("%w: exiftool returned %d results, want 1", types.ErrExtractionFailed, len(files))
	}
	tags := files[0]
	delete(tags, "SourceFile")
	return tags, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
