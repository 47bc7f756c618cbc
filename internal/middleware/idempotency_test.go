package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/accountledger/internal/logging"
)

type testApp struct {
	app   *fiber.App
	mr    *miniredis.Miniredis
	calls int
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ta := &testApp{app: fiber.New(), mr: mr}
	ta.app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	ta.app.Post("/movements", func(c *fiber.Ctx) error {
		ta.calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": ta.calls})
	})
	ta.app.Post("/accounts", func(c *fiber.Ctx) error {
		ta.calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": ta.calls})
	})
	ta.app.Delete("/movements/:id", func(c *fiber.Ctx) error {
		ta.calls++
		return fiber.NewError(fiber.StatusUnprocessableEntity, "rejected")
	})

	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return ta
}

func (ta *testApp) do(t *testing.T, method, path, key string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := ta.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header.Get(idempotentReplayHeader)
}

func TestIdempotencyPassesThroughWithoutHeader(t *testing.T) {
	ta := setupTestApp(t)

	for i := 0; i < 2; i++ {
		status, _, replayed := ta.do(t, fiber.MethodPost, "/movements", "")
		if status != fiber.StatusCreated || replayed != "" {
			t.Fatalf("expected fresh %d, got %d replayed=%q", fiber.StatusCreated, status, replayed)
		}
	}
	if ta.calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", ta.calls)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	ta := setupTestApp(t)

	status, payload, _ := ta.do(t, fiber.MethodPost, "/movements", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// The second request must be served from the cache.
	status, cachedPayload, replayed := ta.do(t, fiber.MethodPost, "/movements", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if replayed != "true" {
		t.Fatalf("expected replay header, got %q", replayed)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if ta.calls != 1 {
		t.Fatalf("expected a single handler invocation, got %d", ta.calls)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedByPath(t *testing.T) {
	ta := setupTestApp(t)

	ta.do(t, fiber.MethodPost, "/movements", "same")
	_, _, replayed := ta.do(t, fiber.MethodPost, "/accounts", "same")
	if replayed != "" {
		t.Fatal("a key used on another path must not replay")
	}
	if ta.calls != 2 {
		t.Fatalf("expected two handler invocations, got %d", ta.calls)
	}
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	ta := setupTestApp(t)

	for i := 0; i < 2; i++ {
		status, _, replayed := ta.do(t, fiber.MethodDelete, "/movements/01", "retry-me")
		if status != fiber.StatusUnprocessableEntity || replayed != "" {
			t.Fatalf("attempt %d: got %d replayed=%q", i, status, replayed)
		}
	}
	if ta.calls != 2 {
		t.Fatalf("failed requests must be retried, handler ran %d times", ta.calls)
	}
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	ta := setupTestApp(t)

	cache := redis.NewClient(&redis.Options{Addr: ta.mr.Addr()})
	defer cache.Close()
	key := idempotencyPrefix + "POST:/movements:busy"
	if err := cache.Set(context.Background(), key, inProgressMarker, time.Minute).Err(); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	status, _, _ := ta.do(t, fiber.MethodPost, "/movements", "busy")
	if status != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
	}
	if ta.calls != 0 {
		t.Fatalf("handler must not run while a duplicate is in flight")
	}
}
