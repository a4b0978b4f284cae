package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

var Conf *Config

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default), TEST, QA, PROD
		Build    string
		WorkDir  string

		AppName         string
		SecretKey       string
		FrontendBaseURL string
		AdminEmail      string

		defaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string

		JWTExpirationDelta        time.Duration
		PasswordResetTimeoutDelta time.Duration
		DashboardCacheTimeout     time.Duration

		Server   serverConfig
		Database DatabaseConfig
	}

	serverConfig struct {
		Host string
		Port int
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		DisableTLS    bool
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (c *Config) AdminEmailAddress() mail.Address {
	return mail.Address{Name: c.AppName + " Admin", Address: c.AdminEmail}
}

func (sc serverConfig) Address() string {
	return fmt.Sprintf("%s:%d", sc.Host, sc.Port)
}

func (dc DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", dc.Host, dc.Port)
}

// Validate checks that all required settings are set.
func (c *Config) Validate() error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.AppName, "appName"),
		vala.StringNotEmpty(c.SecretKey, "secretKey"),
		vala.StringNotEmpty(c.defaultFromEmail, "defaultFromEmail"),
		vala.StringNotEmpty(c.Database.Engine, "database.engine"),
		vala.StringNotEmpty(c.Database.Name, "database.name"),
	).Check()
}

func init() {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Darasa")
	v.SetDefault("secretKey", "w#05n_t$1+6=&u+3^$9qlk*#fhx!e2(-ym@t7b$u8zb0_p4-dz")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("adminEmail", "admin@localhost")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("passwordResetTimeoutDelta", time.Hour)
	v.SetDefault("dashboardCacheTimeout", 5*time.Minute)
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverPort", 8000)
	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "darasa")
	v.SetDefault("databaseUser", "")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", 5432)
	v.SetDefault("databaseDisableTLS", true)

	var testMode bool
	env := os.Getenv("ENV")
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	Conf = &Config{
		Debug:                     v.GetBool("debug"),
		TestMode:                  testMode,
		Env:                       env,
		Build:                     v.GetString("build"),
		WorkDir:                   wd,
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		AdminEmail:                v.GetString("adminEmail"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		DashboardCacheTimeout:     v.GetDuration("dashboardCacheTimeout"),
		Server: serverConfig{
			Host: v.GetString("serverHost"),
			Port: v.GetInt("serverPort"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetInt("databasePort"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
	}
}
