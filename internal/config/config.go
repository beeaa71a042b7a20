package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rx3lixir/watchparty/pkg/logger"
	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	GeneralParams    GeneralParams
	HttpServerParams HttpServerParams
	StorageParams    StorageParams
	MainDBParams     MainDBParams
	S3Params         S3Params
}

type GeneralParams struct {
	Env                 string
	LogLevel            string
	LogAddSource        bool
	LogSourcePathLength int
	PublicBaseURL       string
	// AllowedOrigins applies to both CORS and the websocket handshake.
	// Empty means same-origin only, "*" allows any origin
	AllowedOrigins []string
}

type HttpServerParams struct {
	Address         string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type StorageParams struct {
	Backend        string
	DBTimeout      time.Duration
	FeedBufferSize int
}

type MainDBParams struct {
	Username string
	Password string
	Name     string
	Port     int
	Host     string
	Timeout  int
	MaxConns int32
}

type S3Params struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	BucketName      string
}

type ConfigManager struct {
	v      *viper.Viper
	config *Config
}

// NewConfigManager creates new config manager that handles
// all viper config options and loads a config from yaml
func NewConfigManager(configPath string) (*ConfigManager, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cm := &ConfigManager{v: v}

	if err := cm.loadConfig(); err != nil {
		return nil, err
	}

	return cm, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general_params.env", "dev")
	v.SetDefault("general_params.log_source_path_length", 2)
	v.SetDefault("general_params.public_base_url", "http://localhost:8080/")
	v.SetDefault("http_server_params.http_server_address", "0.0.0.0")
	v.SetDefault("http_server_params.http_server_port", "8080")
	v.SetDefault("http_server_params.read_timeout", "15s")
	v.SetDefault("http_server_params.write_timeout", "15s")
	v.SetDefault("http_server_params.idle_timeout", "60s")
	v.SetDefault("http_server_params.shutdown_timeout", "10s")
	v.SetDefault("storage_params.backend", BackendPostgres)
	v.SetDefault("storage_params.db_timeout", "5s")
	v.SetDefault("storage_params.feed_buffer_size", 64)
	v.SetDefault("main_db_params.db_port", 5432)
	v.SetDefault("main_db_params.db_timeout", 5)
	v.SetDefault("s3_params.region", "us-east-1")
}

// Extracting data from yaml file and loading into Config
func (cm *ConfigManager) loadConfig() error {
	cm.config = &Config{
		GeneralParams: GeneralParams{
			Env:                 cm.v.GetString("general_params.env"),
			LogLevel:            cm.v.GetString("general_params.log_level"),
			LogAddSource:        cm.v.GetBool("general_params.log_add_source"),
			LogSourcePathLength: cm.v.GetInt("general_params.log_source_path_length"),
			PublicBaseURL:       cm.v.GetString("general_params.public_base_url"),
			AllowedOrigins:      splitList(cm.v.GetStringSlice("general_params.allowed_origins")),
		},
		HttpServerParams: HttpServerParams{
			Address:         cm.v.GetString("http_server_params.http_server_address"),
			Port:            cm.v.GetString("http_server_params.http_server_port"),
			ReadTimeout:     cm.v.GetDuration("http_server_params.read_timeout"),
			WriteTimeout:    cm.v.GetDuration("http_server_params.write_timeout"),
			IdleTimeout:     cm.v.GetDuration("http_server_params.idle_timeout"),
			ShutdownTimeout: cm.v.GetDuration("http_server_params.shutdown_timeout"),
		},
		StorageParams: StorageParams{
			Backend:        strings.ToLower(cm.v.GetString("storage_params.backend")),
			DBTimeout:      cm.v.GetDuration("storage_params.db_timeout"),
			FeedBufferSize: cm.v.GetInt("storage_params.feed_buffer_size"),
		},
		MainDBParams: MainDBParams{
			Username: cm.v.GetString("main_db_params.db_username"),
			Password: cm.v.GetString("main_db_params.db_password"),
			Name:     cm.v.GetString("main_db_params.db_name"),
			Port:     cm.v.GetInt("main_db_params.db_port"),
			Host:     cm.v.GetString("main_db_params.db_host"),
			Timeout:  cm.v.GetInt("main_db_params.db_timeout"),
			MaxConns: cm.v.GetInt32("main_db_params.max_conns"),
		},
		S3Params: S3Params{
			Enabled:         cm.v.GetBool("s3_params.enabled"),
			Endpoint:        cm.v.GetString("s3_params.endpoint"),
			AccessKeyID:     cm.v.GetString("s3_params.access_key_id"),
			SecretAccessKey: cm.v.GetString("s3_params.secret_access_key"),
			UseSSL:          cm.v.GetBool("s3_params.use_ssl"),
			Region:          cm.v.GetString("s3_params.region"),
			BucketName:      cm.v.GetString("s3_params.bucket_name"),
		},
	}
	return nil
}

// splitList accepts both yaml lists and a comma separated env value
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Geting config instance
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// Compiling a string to connect to main_db. Credentials are escaped
func (db *MainDBParams) GetDSN() string {
	q := url.Values{}
	q.Set("connect_timeout", strconv.Itoa(db.Timeout))
	q.Set("sslmode", "disable")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:     "/" + db.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (h *HttpServerParams) GetAddress() string {
	return fmt.Sprintf(
		"%s:%s",
		h.Address,
		h.Port,
	)
}

func (c *Config) Validate() error {
	// Checking out enviroment variable
	switch c.GeneralParams.Env {
	case "dev", "prod", "test":
	default:
		return fmt.Errorf("env parameter is invalid: %s. try dev/prod/test instead", c.GeneralParams.Env)
	}

	if c.GeneralParams.LogLevel != "" {
		if _, err := logger.ParseLevel(c.GeneralParams.LogLevel); err != nil {
			return err
		}
	}

	if c.GeneralParams.PublicBaseURL == "" {
		return fmt.Errorf("public_base_url is required")
	}

	// Checking http server parameters
	if c.HttpServerParams.Address == "" {
		return fmt.Errorf("http server address is required")
	}
	if c.HttpServerParams.Port == "" {
		return fmt.Errorf("http server port is required")
	}

	if c.StorageParams.DBTimeout <= 0 {
		return fmt.Errorf("storage db_timeout must be positive")
	}

	switch c.StorageParams.Backend {
	case BackendMemory:
	case BackendPostgres:
		if err := c.MainDBParams.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage backend is invalid: %s. try postgres/memory instead", c.StorageParams.Backend)
	}

	// S3 is only needed for transcript exports
	if c.S3Params.Enabled {
		if c.S3Params.Endpoint == "" {
			return fmt.Errorf("S3 endpoint is required")
		}
		if c.S3Params.AccessKeyID == "" {
			return fmt.Errorf("S3 access_key id is required")
		}
		if c.S3Params.SecretAccessKey == "" {
			return fmt.Errorf("S3 secret_access_key is required")
		}
		if c.S3Params.BucketName == "" {
			return fmt.Errorf("S3 bucket name is required")
		}
	}

	return nil
}

func (db *MainDBParams) validate() error {
	if db.Host == "" {
		return fmt.Errorf("MainDB: host is required")
	}
	if db.Username == "" {
		return fmt.Errorf("MainDB: username is required")
	}
	if db.Password == "" {
		return fmt.Errorf("MainDB: password is requred")
	}
	if db.Name == "" {
		return fmt.Errorf("MainDB: database name is required")
	}
	if db.Port <= 0 || db.Port > 65535 {
		return fmt.Errorf("MainDB: port is invalid")
	}
	return nil
}
