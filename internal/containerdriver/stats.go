package containerdriver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fleetwatch/monitor/internal/domain"
)

// Stats runs `docker stats --no-stream` once and parses the CSV-ish
// output into a map keyed by container name, for every name present in
// containerNames. Parsing is grounded on
// _examples/original_source/src/monitor.rs's collect_docker_stats.
func (d *CLIDriver) Stats(ctx context.Context, containerNames []string) (map[string]domain.ContainerStats, error) {
	wanted := make(map[string]struct{}, len(containerNames))
	for _, n := range containerNames {
		wanted[n] = struct{}{}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, d.binary, "stats", "--no-stream", "--format",
		"{{.Name}},{{.CPUPerc}},{{.MemUsage}},{{.NetIO}},{{.BlockIO}}")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("containerdriver: docker stats: %w: %s", err, stderr.String())
	}

	now := time.Now()
	out := make(map[string]domain.ContainerStats)
	for _, line := range strings.Split(stdout.String(), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 4 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		if _, ok := wanted[name]; !ok {
			continue
		}

		stat := domain.ContainerStats{ServiceID: name, SampledAt: now}

		cpuStr := strings.TrimSuffix(strings.TrimSpace(parts[1]), "%")
		if cpu, err := strconv.ParseFloat(cpuStr, 64); err == nil {
			stat.CPUPct = cpu
		}

		memPart := strings.TrimSpace(strings.SplitN(parts[2], "/", 2)[0])
		if mb, ok := parseSizeToMB(memPart); ok {
			stat.MemMB = mb
		}

		netParts := strings.SplitN(parts[3], "/", 2)
		if len(netParts) == 2 {
			if in, ok := parseSizeToBytes(strings.TrimSpace(netParts[0])); ok {
				stat.NetInB = in
			}
			if outB, ok := parseSizeToBytes(strings.TrimSpace(netParts[1])); ok {
				stat.NetOutB = outB
			}
		}

		if len(parts) >= 5 {
			blkParts := strings.SplitN(parts[4], "/", 2)
			if len(blkParts) == 2 {
				if r, ok := parseSizeToBytes(strings.TrimSpace(blkParts[0])); ok {
					stat.BlkReadB = r
				}
				if w, ok := parseSizeToBytes(strings.TrimSpace(blkParts[1])); ok {
					stat.BlkWriteB = w
				}
			}
		}

		out[name] = stat
	}
	return out, nil
}

// parseSizeToMB converts a docker-stats size string ("12.34MiB") to
// megabytes.
func parseSizeToMB(input string) (float64, bool) {
	b, ok := parseSizeToBytes(input)
	if !ok {
		return 0, false
	}
	return float64(b) / (1024.0 * 1024.0), true
}

// parseSizeToBytes parses docker-stats size strings like "123kB",
// "12.3MiB", "1.2GiB" into a byte count.
func parseSizeToBytes(input string) (int64, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, false
	}

	splitAt := len(input)
	for i, r := range input {
		if unicode.IsLetter(r) {
			splitAt = i
			break
		}
	}
	numPart := strings.TrimSpace(input[:splitAt])
	unitPart := strings.ToLower(strings.TrimSpace(input[splitAt:]))

	value, err := strconv.ParseFloat(strings.ReplaceAll(numPart, ",", "."), 64)
	if err != nil {
		return 0, false
	}

	var bytesVal float64
	switch {
	case strings.HasPrefix(unitPart, "gib"):
		bytesVal = value * 1024 * 1024 * 1024
	case strings.HasPrefix(unitPart, "mib"):
		bytesVal = value * 1024 * 1024
	case strings.HasPrefix(unitPart, "kib"):
		bytesVal = value * 1024
	case strings.HasPrefix(unitPart, "g"):
		bytesVal = value * 1_000_000_000
	case strings.HasPrefix(unitPart, "m"):
		bytesVal = value * 1_000_000
	case strings.HasPrefix(unitPart, "k"):
		bytesVal = value * 1_000
	default:
		bytesVal = value
	}
	return int64(bytesVal), true
}
