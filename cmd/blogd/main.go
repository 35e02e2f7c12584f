// Command blogd runs a standalone blogcore site with the default templates.
// Each production site is its own thin binary like this one, pointing the
// engine at its own templates and static assets.
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/oakmead/blogcore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg := blogcore.SiteConfig{
		SiteName:    blogcore.EnvOr("SITE_NAME", "Blog"),
		URL:         blogcore.EnvOr("SITE_URL", "http://localhost:3000"),
		Description: blogcore.EnvOr("SITE_DESCRIPTION", ""),
		Author:      blogcore.EnvOr("SITE_AUTHOR", ""),

		Addr:         blogcore.EnvOr("ADDR", ":3000"),
		DatabasePath: blogcore.EnvOr("DATABASE_PATH", "data/blog.db"),
		PublicPath:   blogcore.EnvOr("PUBLIC_PATH", "public"),
		UploadsPath:  os.Getenv("UPLOADS_PATH"),

		SessionSecret: blogcore.MustEnv("SESSION_SECRET"),
		CookieSecure:  os.Getenv("COOKIE_SECURE") == "true",

		LogLevel: blogcore.EnvOr("LOG_LEVEL", "info"),
		LogPath:  blogcore.EnvOr("LOG_PATH", "logs/app.log"),

		AnalyticsEnabled: os.Getenv("ANALYTICS_ENABLED") != "false",

		BootstrapAdminUser:     os.Getenv("ADMIN_USER"),
		BootstrapAdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
	if v := os.Getenv("PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PageSize = n
		}
	}

	app := blogcore.New(cfg, defaultViews(cfg))
	defer app.Close()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		app.Echo.Close()
	}()

	if err := app.Start(); err != nil {
		log.Fatalf("blogd: %v", err)
	}
}
