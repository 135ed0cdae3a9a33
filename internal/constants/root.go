package constants

import "time"

const (
	AppName            = "habitsync"
	Version            = "v0.1.0"
	DefaultConfigDir   = "~/.config/habitsync"
	DefaultConfigFile  = "config.yaml"
	DefaultQueuePath   = "~/.config/habitsync/queue.db"
	DefaultRemote      = "http://127.0.0.1:8080"
	DefaultServerAddr  = ":8080"
	DefaultTimezone    = "Local"
	DefaultKeyringUser = "remote-connection"
	TokenKeyringUser   = "session-token"

	// DateFormat is the calendar-day format used for completions (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the reminder time format (HH:MM)
	TimeFormat = "15:04"

	// QueueNamespace is the key the pending/failed queues are persisted under
	QueueNamespace = "offline-storage"

	// MaxRetries is the number of failed sync attempts after which a write is discarded
	MaxRetries = 3

	// DefaultSyncInterval is the background sync cadence while online
	DefaultSyncInterval = 30 * time.Second

	// DefaultProbeInterval is how often the daemon checks the remote for reachability
	DefaultProbeInterval = 10 * time.Second

	// TempIDPrefix marks records that have not been confirmed by the remote store
	TempIDPrefix = "tmp_"

	// Habit name bounds (in runes, after trimming)
	MaxHabitNameLen = 50

	// Notify constants
	NotifierLockfileName   = "habitsync-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.habitsync"
	TrayExecutableName     = "habitsync-tray"
	TraySecretHeader       = "X-Habitsync-Secret"

	// Environment overrides
	EnvRemote    = "HABITSYNC_REMOTE"
	EnvQueue     = "HABITSYNC_QUEUE"
	EnvJWTSecret = "HABITSYNC_JWT_SECRET"
	EnvToken     = "HABITSYNC_TOKEN"
)

// Milestones are the streak lengths worth celebrating
var Milestones = []int{7, 14, 30, 60, 90, 180, 365}
