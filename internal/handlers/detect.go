package handlers

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/fentz26/smartterm/internal/models"
)

// Tool is the program a handler launches, as found on this machine.
type Tool struct {
	Handler string `json:"handler"`
	Program string `json:"program"`
	Status  string `json:"status"` // online, missing
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
}

// Detector looks up handler programs on PATH.
type Detector struct {
	lookPath func(string) (string, error)
	timeout  time.Duration
}

// NewDetector creates a new program detector
func NewDetector() *Detector {
	return &Detector{lookPath: exec.LookPath, timeout: 2 * time.Second}
}

// Scan reports the program behind each handler. Handlers without a fixed
// program run whatever was typed and are skipped.
func (d *Detector) Scan(ctx context.Context, handlers []models.Handler) []Tool {
	var tools []Tool
	for _, h := range handlers {
		if len(h.Run) == 0 {
			continue
		}
		tool := Tool{Handler: h.Name, Program: h.Run[0], Status: "missing"}
		if path, err := d.lookPath(h.Run[0]); err == nil {
			tool.Status = "online"
			tool.Path = path
			tool.Version = d.version(ctx, path)
		}
		tools = append(tools, tool)
	}
	return tools
}

func (d *Detector) version(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return ""
	}
	version := strings.TrimSpace(string(out))
	// Take first line only
	if idx := strings.Index(version, "\n"); idx > 0 {
		version = version[:idx]
	}
	if len(version) > 40 {
		version = version[:40]
	}
	return version
}
