package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	Debug   bool
	Port    string

	// Logging
	LogLevel      string
	LogJSON       bool
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Filesystem layout
	DataRoot    string
	ServersPath string
	ConfigsPath string
	SourcesFile string

	// Java runtime
	JavaHome string
	JavaXmx  string
	JavaXms  string

	// Console markers
	ReadyMarker            string
	ErrorMarker            string
	HangMarker             string // empty disables the hang workaround
	InstallerSuccessMarker string

	// Timeouts
	BootstrapTimeout  time.Duration
	InstallerTimeout  time.Duration
	LaunchTimeout     time.Duration
	StopGracePeriod   time.Duration
	TailPollInterval  time.Duration
	HTTPClientTimeout time.Duration

	// RCON
	RCONPortOffset int
	RCONPassword   string
	RCONTimeout    time.Duration

	// Event history
	EventsFile     string
	InfluxDBURL    string
	InfluxDBToken  string
	InfluxDBOrg    string
	InfluxDBBucket string
}

var AppConfig *Config

// Load loads configuration from environment
func Load() *Config {
	// Load .env file if exists
	_ = godotenv.Load()

	dataRoot := getEnv("DATA_ROOT", ".")

	config := &Config{
		AppName:       getEnv("APP_NAME", "easyservers"),
		Debug:         getEnvBool("DEBUG", false),
		Port:          getEnv("PORT", "8000"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		LogJSON:       getEnvBool("LOG_JSON", false),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),

		DataRoot:    dataRoot,
		ServersPath: getEnv("SERVERS_PATH", filepath.Join(dataRoot, "servers")),
		ConfigsPath: getEnv("CONFIGS_PATH", filepath.Join(dataRoot, "configs")),
		SourcesFile: getEnv("SOURCES_FILE", filepath.Join(dataRoot, "sources.yaml")),

		JavaHome: getEnv("JAVA_HOME", ""),
		JavaXmx:  getEnv("JAVA_XMX", "1G"),
		JavaXms:  getEnv("JAVA_XMS", "1G"),

		ReadyMarker:            getEnv("READY_MARKER", "Done"),
		ErrorMarker:            getEnv("ERROR_MARKER", "/ERROR"),
		HangMarker:             getEnv("HANG_MARKER", ""),
		InstallerSuccessMarker: getEnv("INSTALLER_SUCCESS_MARKER", "The server installed successfully"),

		BootstrapTimeout:  getEnvDuration("BOOTSTRAP_TIMEOUT", 10*time.Minute),
		InstallerTimeout:  getEnvDuration("INSTALLER_TIMEOUT", 15*time.Minute),
		LaunchTimeout:     getEnvDuration("LAUNCH_TIMEOUT", 2*time.Minute),
		StopGracePeriod:   getEnvDuration("STOP_GRACE_PERIOD", 15*time.Second),
		TailPollInterval:  getEnvDuration("TAIL_POLL_INTERVAL", 200*time.Millisecond),
		HTTPClientTimeout: getEnvDuration("HTTP_CLIENT_TIMEOUT", 5*time.Minute),

		RCONPortOffset: getEnvInt("RCON_PORT_OFFSET", 10),
		RCONPassword:   getEnv("RCON_PASSWORD", "password"),
		RCONTimeout:    getEnvDuration("RCON_TIMEOUT", 5*time.Second),

		EventsFile:     getEnv("EVENTS_FILE", ""),
		InfluxDBURL:    getEnv("INFLUXDB_URL", ""),
		InfluxDBToken:  getEnv("INFLUXDB_TOKEN", ""),
		InfluxDBOrg:    getEnv("INFLUXDB_ORG", "easyservers"),
		InfluxDBBucket: getEnv("INFLUXDB_BUCKET", "events"),
	}

	AppConfig = config
	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Invalid boolean for %s, using default: %v", key, defaultValue)
			return defaultValue
		}
		return boolVal
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("Invalid integer for %s, using default: %d", key, defaultValue)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("Invalid duration for %s, using default: %s", key, defaultValue)
			return defaultValue
		}
		return d
	}
	return defaultValue
}
