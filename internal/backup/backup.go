// Package backup archives failed writes before they are dropped from the
// queue so they can be re-queued later.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/habitsync/internal/models"
)

const (
	// MaxBackups is the maximum number of backups to keep
	MaxBackups = 14
	// BackupDirName is the name of the backup directory
	BackupDirName = "backups"
	// BackupFilePrefix is the prefix for backup files
	BackupFilePrefix = "queue-"
	// BackupFileSuffix is the suffix for backup files
	BackupFileSuffix = ".json"

	timestampFormat = "20060102-150405"
)

// ErrNoBackups is returned when a restore is requested and no backup exists
var ErrNoBackups = errors.New("no backups found")

// BackupInfo contains information about a backup file
type BackupInfo struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Manager handles backup operations
type Manager struct {
	backupDir string
	now       func() time.Time
}

// NewManager creates a backup manager storing files under configDir/backups
func NewManager(configDir string) *Manager {
	return &Manager{
		backupDir: filepath.Join(configDir, BackupDirName),
		now:       time.Now,
	}
}

// GetBackupDir returns the backup directory path
func (m *Manager) GetBackupDir() string {
	return m.backupDir
}

// CreateBackup writes the given writes to a new timestamped file and rotates old ones
func (m *Manager) CreateBackup(writes []models.PendingWrite) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupPath, err := m.nextPath()
	if err != nil {
		return "", err
	}

	if writes == nil {
		writes = []models.PendingWrite{}
	}
	data, err := json.MarshalIndent(writes, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := m.rotateBackups(); err != nil {
		// the backup itself succeeded
		fmt.Fprintf(os.Stderr, "Warning: failed to rotate old backups: %v\n", err)
	}
	return backupPath, nil
}

// nextPath returns an unused backup file name for the current time
func (m *Manager) nextPath() (string, error) {
	timestamp := m.now().UTC().Format(timestampFormat)
	backupPath := filepath.Join(m.backupDir, BackupFilePrefix+timestamp+BackupFileSuffix)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(backupPath); os.IsNotExist(err) {
			return backupPath, nil
		}
		if counter > 100 {
			return "", fmt.Errorf("failed to generate unique backup filename")
		}
		backupPath = filepath.Join(m.backupDir, fmt.Sprintf("%s%s-%d%s", BackupFilePrefix, timestamp, counter, BackupFileSuffix))
	}
}

// ListBackups returns all available backups, newest first
func (m *Manager) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []BackupInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, BackupFilePrefix) || !strings.HasSuffix(name, BackupFileSuffix) {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(name, BackupFilePrefix), BackupFileSuffix)
		counter := 0
		// a trailing -N is a collision counter
		if parts := strings.Split(stamp, "-"); len(parts) == 3 {
			n, err := strconv.Atoi(parts[2])
			if err != nil {
				continue
			}
			stamp, counter = parts[0]+"-"+parts[1], n
		}
		timestamp, err := time.Parse(timestampFormat, stamp)
		if err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path:      filepath.Join(m.backupDir, name),
			Timestamp: timestamp.Add(time.Duration(counter)),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Latest returns the newest backup
func (m *Manager) Latest() (BackupInfo, error) {
	backups, err := m.ListBackups()
	if err != nil {
		return BackupInfo{}, err
	}
	if len(backups) == 0 {
		return BackupInfo{}, ErrNoBackups
	}
	return backups[0], nil
}

// ReadBackup loads the writes stored in a backup file
func (m *Manager) ReadBackup(backupPath string) ([]models.PendingWrite, error) {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	var writes []models.PendingWrite
	if err := json.Unmarshal(data, &writes); err != nil {
		return nil, fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}
	return writes, nil
}

// rotateBackups removes old backups beyond the retention limit
func (m *Manager) rotateBackups() error {
	backups, err := m.ListBackups()
	if err != nil {
		return err
	}
	for i := MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
	}
	return nil
}
