package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/auth"
	"github.com/clipdigest/bots/internal/handler"
	"github.com/clipdigest/bots/internal/middleware"
	"github.com/clipdigest/bots/internal/service"
	"github.com/clipdigest/bots/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *store.JobStore
}

// setupApp creates a Fiber app wired like main.go, backed by a throwaway
// job store and the test Redis database.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost, must be running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: redis not available: %v", err)
	}
	// Run task ids carry retention, so entries left by a previous test run
	// would suppress enqueues in this one.
	if err := redisClient.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush test redis db: %v", err)
	}

	// Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()
	testLog := zerolog.Nop()

	// Job store on a throwaway path
	jobStore := store.NewJobStore(filepath.Join(t.TempDir(), "jobs.json"), testLog)

	// Services behind the HTTP surface. Digest and portfolio execution run
	// in the worker, which is not started here; the routes only enqueue.
	runsService := service.NewRunsService(asynqClient, testLog)
	jobsService := service.NewJobsService(jobStore, testLog)

	// Handlers
	runsHandler := handler.NewRunsHandler(runsService, validate)
	jobsHandler := handler.NewJobsHandler(jobsService)
	authHandler := handler.NewAuthHandler(testJWTSecret)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret, 24)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Fiber app
	app := fiber.New(fiber.Config{})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":   true,
				"openai":  false,
				"images":  false,
				"youtube": false,
				"news":    false,
				"scrape":  false,
				"blog":    false,
				"discord": false,
				"storage": false,
				"auth":    true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	jobs := api.Group("/jobs", rateLimiter.JobsLimit(10000))
	jobs.Get("/", jobsHandler.List)
	jobs.Delete("/*", jobsHandler.Abandon)

	runs := api.Group("/runs", rateLimiter.RunsLimit(10000))
	runs.Post("/digest", runsHandler.Digest)
	runs.Post("/portfolio", runsHandler.Portfolio)
	runs.Post("/poll", runsHandler.Poll)

	return &testApp{app: app, store: jobStore}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.Claims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "clipdigest-bots",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
