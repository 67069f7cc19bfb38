package core

import (
	"log"
	"net"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EngineMemory   = "memory"
	EnginePostgres = "postgres"
)

type (
	ServerConfig struct {
		Host               string
		DebugHost          string
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
	}

	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		Server           ServerConfig
		Database         DatabaseConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// DSN builds the connection string for dbName. admin switches to the admin credentials when they are set.
func (c DatabaseConfig) DSN(dbName string, admin bool) string {
	usr := url.UserPassword(c.User, c.Password)
	if admin && c.AdminUser != "" {
		usr = url.UserPassword(c.AdminUser, c.AdminPassword)
	}

	sslMode := "require"
	if c.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   EnginePostgres,
		User:     usr,
		Host:     c.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// NewConfig reads the configuration from the environment.
// Variables are prefixed with the uppercased ENV value, e.g. DEV_DATABASE_NAME.
// A config/.env.<env> file found under the project root is loaded first.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Rapor")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Rapor <noreply@localhost>")
	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("database.engine", EnginePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "rapor")
	v.SetDefault("database.user", "rapor")
	v.SetDefault("database.password", "rapor")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 10)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseUrl"), "/"),
		DefaultFromEmail: *from,
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			ReadTimeout:        v.GetDuration("server.readTimeout"),
			WriteTimeout:       v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
	}
}
