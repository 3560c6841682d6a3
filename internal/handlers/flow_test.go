package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkorolev/authd/internal/logger"
	"github.com/nkorolev/authd/internal/repository/postgres"
	"github.com/nkorolev/authd/internal/service/auth"
	"github.com/nkorolev/authd/internal/service/auth/tokenmanager"
	"github.com/nkorolev/authd/internal/testutil"
)

// End to end auth flow against real postgres. Uses the pool directly, not a
// per-test transaction: the concurrency scenario needs real parallel
// connections. Every subtest registers its own user so they don't collide.
func Test_AuthFlow_Postgres(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
	})
	require.NoError(t, err, "token manager should be created without errors")

	s, err := auth.NewService(
		auth.Config{},
		tokenManager,
		&postgres.UserRepo{DB: pg.Pool},
		&postgres.SessionRepo{DB: pg.Pool},
	)
	require.NoError(t, err, "auth service starting error")

	srv := httptest.NewServer(NewRouter(RouterConfig{}, s, logger.NewNoOpLogger()))
	t.Cleanup(srv.Close)

	accessTokenFromBody := func(t *testing.T, body []byte) string {
		t.Helper()

		var data struct {
			AccessToken string `json:"accesstoken"`
		}
		require.NoError(t, json.Unmarshal(body, &data), "body should be JSON with accesstoken. Body: %s", string(body))
		return data.AccessToken
	}

	postJSON := func(t *testing.T, path string, data string) (*http.Response, []byte) {
		t.Helper()

		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(data))
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp, body
	}

	postWithCookie := func(t *testing.T, path string, cookie *http.Cookie) (*http.Response, []byte) {
		t.Helper()

		req, err := http.NewRequest("POST", srv.URL+path, nil)
		require.NoError(t, err)
		req.AddCookie(cookie)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp, body
	}

	t.Run("register login refresh logout", func(t *testing.T) {
		resp, body := postJSON(t, "/register", `{"email": "flow@example.com", "password": "StrongEnoughPassword"}`)
		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))

		// Login: access token in body, refresh token in scoped cookie
		resp, body = postJSON(t, "/login", `{"email": "flow@example.com", "password": "StrongEnoughPassword"}`)
		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
		firstAccess := accessTokenFromBody(t, body)
		require.NotEmpty(t, firstAccess)
		require.Equal(t, 1, len(resp.Cookies()))
		firstRefresh := resp.Cookies()[0]
		require.Equal(t, "refreshtoken", firstRefresh.Name)
		require.Equal(t, "/refresh_token", firstRefresh.Path)

		// Access token opens the protected endpoint
		req, err := http.NewRequest("GET", srv.URL+"/protected", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+firstAccess)
		protectedResp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = protectedResp.Body.Close()
		require.Equal(t, http.StatusOK, protectedResp.StatusCode)

		// Refresh rotates both tokens
		resp, body = postWithCookie(t, "/refresh_token", &http.Cookie{Name: firstRefresh.Name, Value: firstRefresh.Value})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		secondAccess := accessTokenFromBody(t, body)
		require.NotEmpty(t, secondAccess)
		require.NotEqual(t, firstAccess, secondAccess)
		require.Equal(t, 1, len(resp.Cookies()))
		secondRefresh := resp.Cookies()[0]
		require.NotEqual(t, firstRefresh.Value, secondRefresh.Value)

		// The rotated away cookie is dead
		resp, body = postWithCookie(t, "/refresh_token", &http.Cookie{Name: firstRefresh.Name, Value: firstRefresh.Value})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "", accessTokenFromBody(t, body))

		// Logout kills the live session too
		resp, _ = postWithCookie(t, "/logout", &http.Cookie{Name: secondRefresh.Name, Value: secondRefresh.Value})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body = postWithCookie(t, "/refresh_token", &http.Cookie{Name: secondRefresh.Name, Value: secondRefresh.Value})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "", accessTokenFromBody(t, body))
	})

	t.Run("concurrent refresh has exactly one winner", func(t *testing.T) {
		resp, body := postJSON(t, "/register", `{"email": "race@example.com", "password": "StrongEnoughPassword"}`)
		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))

		resp, _ = postJSON(t, "/login", `{"email": "race@example.com", "password": "StrongEnoughPassword"}`)
		require.Equal(t, 1, len(resp.Cookies()))
		refreshCookie := resp.Cookies()[0]

		// All workers present the same refresh cookie at once. The store swap
		// is compare and swap so exactly one renewal may succeed, the rest
		// fail soft with an empty access token
		const workers = 16

		var wg sync.WaitGroup
		results := make(chan string, workers)

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()

				req, err := http.NewRequest("POST", srv.URL+"/refresh_token", nil)
				if err != nil {
					results <- ""
					return
				}
				req.AddCookie(&http.Cookie{Name: refreshCookie.Name, Value: refreshCookie.Value})
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					results <- ""
					return
				}
				body, err := io.ReadAll(resp.Body)
				_ = resp.Body.Close()
				if err != nil {
					results <- ""
					return
				}

				var data struct {
					AccessToken string `json:"accesstoken"`
				}
				_ = json.Unmarshal(body, &data)
				results <- data.AccessToken
			}()
		}

		wg.Wait()
		close(results)

		winners := 0
		for access := range results {
			if access != "" {
				winners++
			}
		}
		require.Equal(t, 1, winners, "exactly one concurrent renewal may win")
	})
}
