// internal/app/bootstrap/appconfig.go
package bootstrap

import (
	"strings"
	"time"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig covers ports, TLS, logging, CORS, body limits and
// timeouts. Everything specific to the drive lives here and is passed to
// every lifecycle hook.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64
	DBTimeoutShort   time.Duration
	DBTimeoutMedium  time.Duration

	// Identity tokens
	JWTSecret string
	JWTTTL    time.Duration

	// Login rate limiting
	RateLimitEnabled       bool
	RateLimitLoginAttempts int
	RateLimitLoginWindow   time.Duration
	RateLimitLoginLockout  time.Duration

	// Blob storage: "local", "s3" or "memory"
	StorageType       string
	StorageLocalPath  string
	StorageLocalURL   string // mount point of the signed download endpoint
	StorageSigningKey string

	// S3-compatible storage (only used if StorageType is "s3")
	StorageS3Region    string
	StorageS3Bucket    string
	StorageS3Prefix    string
	StorageS3Endpoint  string
	StorageS3AccessKey string
	StorageS3SecretKey string

	// Drive behaviour
	DownloadURLTTL         time.Duration
	DefaultStorageLimit    int64
	MaxUploadSize          int64
	TrashRetention         time.Duration
	TrashPurgeInterval     time.Duration
	QuotaReconcileInterval time.Duration // 0 disables the job

	// Share notifications; SMTPHost "" disables them
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	MailFrom     string
	MailFromName string
	AppURL       string

	// Statistics; zero bucket or interval disables the recorder or job
	APIStatsBucket      time.Duration
	APIStatsRetention   time.Duration
	DriveStatsInterval  time.Duration
	DailyStatsRetention time.Duration

	LedgerRetention time.Duration

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAuth  string
	AuditLogDrive string

	MetricsToken      string
	APIAllowedOrigins []string
	OpsToken          string // blank leaves /ops unmounted
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
