package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ekg-insight/internal/ekg"
)

var allowedExtensions = []string{
	".txt",
	".tsv",
}

const (
	defaultListenAddr        = "127.0.0.1:8080"
	defaultRefreshDebounceMS = 500
	defaultPersonDBName      = "person_db.json"
	defaultLogLevel          = "info"
)

// AllowedExtensions returns the list of recording file extensions (lowercase).
func AllowedExtensions() []string {
	result := make([]string, len(allowedExtensions))
	copy(result, allowedExtensions)
	return result
}

// ResolveDataRoot returns the directory holding recording files and the
// person database. The directory is created when it does not yet exist.
func ResolveDataRoot() (string, error) {
	dir := strings.TrimSpace(os.Getenv("EKG_DATA_DIR"))
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(cwd, "data")
	}

	abs, err := expandPath(dir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}

	return abs, nil
}

// ResolvePersonDB returns the absolute path of the person database. When the
// file does not exist it is created holding an empty list.
func ResolvePersonDB(dataRoot string) (string, error) {
	path := strings.TrimSpace(os.Getenv("EKG_PERSON_DB"))
	if path == "" {
		path = filepath.Join(dataRoot, defaultPersonDBName)
	}

	abs, err := expandPath(path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}

	if _, err := os.Stat(abs); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err := os.WriteFile(abs, []byte("[]\n"), 0o644); err != nil {
			return "", err
		}
	}

	return abs, nil
}

// ListenAddr returns the TCP address the HTTP server should bind to.
func ListenAddr() string {
	addr := strings.TrimSpace(os.Getenv("EKG_LISTEN_ADDR"))
	if addr == "" {
		return defaultListenAddr
	}
	return addr
}

// ValidateListenAddr ensures the configured listen address is restricted to localhost.
func ValidateListenAddr(addr string) error {
	addr = strings.TrimSpace(strings.ToLower(addr))
	if strings.HasPrefix(addr, "127.0.0.1:") || strings.HasPrefix(addr, "localhost:") || strings.HasPrefix(addr, "[::1]:") {
		return nil
	}
	return errors.New("listen address must bind to localhost")
}

// RefreshDebounce returns the duration to wait before reloading after
// file-system change events.
func RefreshDebounce() time.Duration {
	ms, ok := positiveInt("EKG_REFRESH_DEBOUNCE_MS", true)
	if !ok {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// MaxRecordingBytes returns the size cap applied when loading recordings.
func MaxRecordingBytes() int64 {
	value := strings.TrimSpace(os.Getenv("EKG_MAX_RECORDING_BYTES"))
	if value == "" {
		return ekg.DefaultMaxBytes
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return ekg.DefaultMaxBytes
	}
	return n
}

// CompareWorkers returns how many recordings are summarized concurrently.
func CompareWorkers() int {
	n, ok := positiveInt("EKG_COMPARE_WORKERS", false)
	if !ok {
		return runtime.NumCPU()
	}
	return n
}

// LogLevel returns the configured zerolog level name.
func LogLevel() string {
	if value := strings.TrimSpace(os.Getenv("EKG_LOG_LEVEL")); value != "" {
		return strings.ToLower(value)
	}
	return defaultLogLevel
}

// Detection holds the peak tuning and the lower heart-rate bound.
type Detection struct {
	Peaks        ekg.PeakParams
	MinHeartRate float64
}

// DefaultDetection returns the built-in tuning.
func DefaultDetection() Detection {
	return Detection{
		Peaks:        ekg.DefaultPeakParams(),
		MinHeartRate: ekg.DefaultMinHeartRate,
	}
}

// Validate rejects tuning the analysis would refuse.
func (d Detection) Validate() error {
	if err := d.Peaks.Validate(); err != nil {
		return err
	}
	if d.MinHeartRate <= 0 {
		return fmt.Errorf("%w: min heart rate must be positive, got %g", ekg.ErrInvalidParameter, d.MinHeartRate)
	}
	return nil
}

type detectionYAML struct {
	MinDistance   *int     `yaml:"min_distance"`
	MinHeight     *float64 `yaml:"min_height"`
	MinProminence *float64 `yaml:"min_prominence"`
	MinHeartRate  *float64 `yaml:"min_heart_rate"`
}

// ResolveDetection returns the detection tuning after applying defaults,
// YAML configuration (when enabled), and environment variable overrides.
func ResolveDetection() (Detection, error) {
	det := DefaultDetection()

	configPath := strings.TrimSpace(os.Getenv("EKG_DETECTION_CONFIG"))
	if configPath != "" {
		resolved, err := expandPath(configPath)
		if err != nil {
			return Detection{}, err
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return Detection{}, err
		}
		var yamlConfig detectionYAML
		if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
			return Detection{}, err
		}
		if yamlConfig.MinDistance != nil {
			det.Peaks.MinDistance = *yamlConfig.MinDistance
		}
		if yamlConfig.MinHeight != nil {
			det.Peaks.MinHeight = *yamlConfig.MinHeight
		}
		if yamlConfig.MinProminence != nil {
			det.Peaks.MinProminence = *yamlConfig.MinProminence
		}
		if yamlConfig.MinHeartRate != nil {
			det.MinHeartRate = *yamlConfig.MinHeartRate
		}
	}

	if value := strings.TrimSpace(os.Getenv("EKG_MIN_DISTANCE")); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return Detection{}, fmt.Errorf("EKG_MIN_DISTANCE: %w", err)
		}
		det.Peaks.MinDistance = n
	}
	for _, override := range []struct {
		env    string
		target *float64
	}{
		{"EKG_MIN_HEIGHT", &det.Peaks.MinHeight},
		{"EKG_MIN_PROMINENCE", &det.Peaks.MinProminence},
		{"EKG_MIN_HEART_RATE", &det.MinHeartRate},
	} {
		value := strings.TrimSpace(os.Getenv(override.env))
		if value == "" {
			continue
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Detection{}, fmt.Errorf("%s: %w", override.env, err)
		}
		*override.target = f
	}

	if err := det.Validate(); err != nil {
		return Detection{}, err
	}
	return det, nil
}

func positiveInt(env string, allowZero bool) (int, bool) {
	value := strings.TrimSpace(os.Getenv(env))
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		return 0, false
	}
	return n, true
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Abs(path)
}
