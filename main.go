package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v7"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	gateway "github.com/gamelink/gamelink/apigateway"
	"github.com/gamelink/gamelink/audit"
	"github.com/gamelink/gamelink/link"
	"github.com/gamelink/gamelink/roles"
	"github.com/gamelink/gamelink/store"
)

var (
	logrusLogger  = logrus.New()
	serviceConfig link.Config
	linkService   *link.Service
	redisClient   *redis.Client
)

// parseConfig reads the secrets file named by GAMELINK_CONFIG (default
// .secrets.json). A missing file is not fatal; defaults and env take over.
func parseConfig(cfg *link.Config) error {
	path := os.Getenv("GAMELINK_CONFIG")
	if path == "" {
		path = ".secrets.json"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logrusLogger.Printf("Error in reading config file: %v", err)
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		logrusLogger.Printf("Error in parsing config file: %v", err)
		return err
	}
	return nil
}

// GetMainEngine assembles the route table and middleware chain.
func GetMainEngine() *gin.Engine {
	route := gin.Default()
	route.HandleMethodNotAllowed = true
	route.Use(gateway.Instrumentation())
	route.Use(gateway.RequestID())
	route.Use(gateway.OptionsMiddleware)

	route.GET("/metrics", gin.WrapH(promhttp.Handler()))
	route.POST("/generate_api_key", gateway.MintAPIKeyHandler(redisClient))

	userdata := route.Group("/userdata", gateway.APIAuth(redisClient))
	{
		userdata.POST("", linkService.OGUpdateHandler)
		userdata.POST("/update", linkService.UpdateHandler)
		userdata.POST("/create", linkService.CreateHandler)
		userdata.DELETE("", linkService.DeleteHandler)
	}
	return route
}

func init() {
	logrusLogger.Level = logrus.DebugLevel
	logrusLogger.SetReportCaller(true)

	if err := parseConfig(&serviceConfig); err != nil {
		logrusLogger.Printf("continuing with defaults: %v", err)
	}
	serviceConfig.Defaults()

	db, err := store.OpenFromConfig(serviceConfig.DatabaseURL, serviceConfig.SQLitePath, serviceConfig.DBDriver)
	if err != nil {
		logrusLogger.Fatalf("error in connecting to db: %v", err)
	}
	if err := store.Migrate(context.Background(), db); err != nil {
		logrusLogger.Fatalf("error in migrating db: %v", err)
	}

	if serviceConfig.RedisHost != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: serviceConfig.RedisHost})
	}

	link.RegisterValidations()
	linkService = &link.Service{
		Store: store.New(db),
		Authority: roles.NewClient(
			serviceConfig.DiscordToken,
			serviceConfig.GuildID,
			roles.DefaultRules(serviceConfig.RoleIDs),
			logrusLogger,
		),
		Audit:  audit.NewWebhook(serviceConfig.WebhookURL, logrusLogger),
		Logger: logrusLogger,
		Config: serviceConfig,
	}
}

func main() {
	if err := GetMainEngine().Run(serviceConfig.Port); err != nil {
		logrusLogger.Fatalf("server exited: %v", err)
	}
}
