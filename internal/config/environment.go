// Save as: internal/config/environment.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries everything the pipeline and server need. It is built
// once in main and passed by value; nothing reads the environment after
// startup.
type Config struct {
	Port    int
	DBPath  string
	DataDir string

	AdminToken string

	// Daily fetch time of day, UTC, "HH:MM".
	FetchAtUTC string

	MaxItemsPerFeed int
	RequestTimeout  time.Duration
	UserAgent       string

	MinWords     int
	PreviewWords int
}

func GetConfig() Config {
	config := Config{
		Port:            8080,
		DBPath:          "data/daybrief.db",
		DataDir:         "data",
		FetchAtUTC:      "02:00",
		MaxItemsPerFeed: 50,
		RequestTimeout:  20 * time.Second,
		UserAgent:       "daybrief/1.0",
		MinWords:        300,
		PreviewWords:    200,
	}

	// Override with environment variables if present
	if port := os.Getenv("DAYBRIEF_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}

	if dbPath := os.Getenv("DAYBRIEF_DB_PATH"); dbPath != "" {
		config.DBPath = dbPath
	}

	if dataDir := os.Getenv("DAYBRIEF_DATA_DIR"); dataDir != "" {
		config.DataDir = dataDir
	}

	config.AdminToken = os.Getenv("DAYBRIEF_ADMIN_TOKEN")

	if at := os.Getenv("DAYBRIEF_FETCH_AT_UTC"); at != "" {
		config.FetchAtUTC = at
	}

	if max := os.Getenv("DAYBRIEF_MAX_ITEMS_PER_FEED"); max != "" {
		if n, err := strconv.Atoi(max); err == nil && n > 0 {
			config.MaxItemsPerFeed = n
		}
	}

	if secs := os.Getenv("DAYBRIEF_REQUEST_TIMEOUT_SECONDS"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil && n > 0 {
			config.RequestTimeout = time.Duration(n) * time.Second
		}
	}

	if ua := os.Getenv("DAYBRIEF_USER_AGENT"); ua != "" {
		config.UserAgent = ua
	}

	if min := os.Getenv("DAYBRIEF_MIN_WORDS"); min != "" {
		if n, err := strconv.Atoi(min); err == nil && n > 0 {
			config.MinWords = n
		}
	}

	if preview := os.Getenv("DAYBRIEF_PREVIEW_WORDS"); preview != "" {
		if n, err := strconv.Atoi(preview); err == nil && n > 0 {
			config.PreviewWords = n
		}
	}

	return config
}

func (c Config) GetAddress() string {
	return fmt.Sprintf(":%d", c.Port)
}
