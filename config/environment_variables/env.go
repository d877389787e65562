package environment_variables

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
)

type EnvironmentVariable struct {
	// cache
	CACHE_TYPE              string `default:"redis"`
	CACHE_URL               string `default:"redis://localhost:6379"`
	CACHE_PASSWORD          string
	CACHE_DB                string
	CACHE_RETRY_INTERVAL    time.Duration `default:"30s"`
	LOCAL_CACHE_MAX_ENTRIES int           `default:"10000"`

	// feed cache policy
	FEED_TTL     time.Duration `default:"5m"`
	TRENDING_TTL time.Duration `default:"15m"`
	SCORE_TTL    time.Duration `default:"5m"`

	// pagination
	FEED_PAGE_SIZE     int           `default:"20"`
	FEED_MAX_PAGE_SIZE int           `default:"100"`
	FETCH_DEBOUNCE     time.Duration `default:"1s"`
	SESSION_IDLE_TTL   time.Duration `default:"30m"`

	// relevance scoring
	SCORE_RECENCY_BASE   float64       `default:"100"`
	SCORE_RECENCY_DECAY  float64       `default:"2"`
	SCORE_LIKE_WEIGHT    float64       `default:"2"`
	SCORE_COMMENT_WEIGHT float64       `default:"3"`
	SCORE_MEDIA_BONUS    float64       `default:"20"`
	SCORE_PREMIUM_BONUS  float64       `default:"50"`
	TRENDING_WINDOW      time.Duration `default:"48h"`
	TRENDING_SIZE        int           `default:"50"`

	// mutations
	POST_MAX_LENGTH int `default:"5000"`

	// data source
	FEED_SOURCE             string `default:"postgres"`
	FEED_UPSTREAM_URL       string
	DB_POSTGRESQL_WRITE_DSN string
	DB_POSTGRESQL_READ1_DSN string

	// realtime
	REALTIME_CHANNEL string `default:"feed:posts:new"`

	// http
	HTTP_PORT          int `default:"8080"`
	JWT_SECRET         []byte
	ALLOWED_CORS_HOSTS []string
	LOG_LEVEL          string `default:"info"`
}

func (ev *EnvironmentVariable) LoadFromEnv() {
	v := reflect.ValueOf(ev).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		envKey := field.Name
		envValue := os.Getenv(envKey)
		if envValue == "" {
			envValue = field.Tag.Get("default")
		}
		if envValue == "" {
			continue
		}
		if err := setField(v.Field(i), envValue); err != nil {
			fmt.Printf("Invalid SYSENV %s: %v\n", envKey, err)
		}
	}
}

func setField(field reflect.Value, raw string) error {
	switch field.Interface().(type) {
	case time.Duration:
		d, err := cast.ToDurationE(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	case []byte:
		field.SetBytes([]byte(raw))
		return nil
	case []string:
		parts := strings.Split(raw, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				values = append(values, p)
			}
		}
		field.Set(reflect.ValueOf(values))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := cast.ToInt64E(raw)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

// Singleton
var EnvironmentVariables = EnvironmentVariable{}
