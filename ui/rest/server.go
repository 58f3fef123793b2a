package rest

import (
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-bookings/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

type ServerOptions struct {
	BasePath  string
	BasicAuth []string // user:secret pairs
	Debug     bool
	// RateLimit is the number of requests per IP per minute. Zero disables the limiter.
	RateLimit int
}

// ParseBasicAuth turns "user:secret" pairs into the basicauth users map.
func ParseBasicAuth(pairs []string) (map[string]string, error) {
	accounts := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		user, secret, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || user == "" || secret == "" {
			return nil, fmt.Errorf("basic auth %q is not valid, use <user>:<secret>", pair)
		}
		accounts[user] = secret
	}
	return accounts, nil
}

// NewApp builds the fiber app with the middleware stack and returns it with
// the basic-auth protected /api group.
func NewApp(opts ServerOptions) (*fiber.App, fiber.Router, error) {
	accounts, err := ParseBasicAuth(opts.BasicAuth)
	if err != nil {
		return nil, nil, err
	}
	if len(accounts) == 0 {
		return nil, nil, fmt.Errorf("APP_BASIC_AUTH is required; set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>]")
	}

	app := fiber.New(fiber.Config{
		AppName:               "Az-Bookings Notification Engine",
		DisableStartupMessage: true,
		ServerHeader:          "Hidden",
	})

	app.Use(requestid.New())
	app.Use(middleware.Recovery())
	app.Use(helmet.New())
	if opts.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
		}))
	}
	if opts.Debug {
		app.Use(logger.New())
	}

	apiGroup := app.Group(opts.BasePath + "/api")
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: accounts,
	}))

	return app, apiGroup, nil
}

// NotFound terminates the api group so unknown routes answer in JSON.
func NotFound(apiGroup fiber.Router) {
	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})
}
