package enhancer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// PopplerRenderer shells out to pdftoppm for page rendering. Detected at
// startup; when the binary is absent the enhancer runs without cover images.
type PopplerRenderer struct {
	binary string
}

// NewPopplerRenderer locates pdftoppm on PATH, nil when unavailable
func NewPopplerRenderer() *PopplerRenderer {
	path, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil
	}
	return &PopplerRenderer{binary: path}
}

// RenderPage renders one page to PNG at the given DPI
func (r *PopplerRenderer) RenderPage(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "benchscope-render-*")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, r.binary, //nolint:gosec // fixed binary, numeric args
		"-png",
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		pdfPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w (%s)", err, out)
	}

	data, err := os.ReadFile(prefix + ".png") //nolint:gosec // path under our temp dir
	if err != nil {
		return nil, fmt.Errorf("read rendered page: %w", err)
	}
	return data, nil
}
