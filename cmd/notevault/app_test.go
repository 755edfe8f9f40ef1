package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notevault/internal/clock"
	"github.com/MarcoPoloResearchLab/notevault/internal/config"
	"github.com/MarcoPoloResearchLab/notevault/internal/presentation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const jsonContentType = "application/json"

func TestAddListExportImportFlow(testContext *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(testContext, "exportable")

	app := newTestApplication(testContext, cfg)

	var output bytes.Buffer
	require.NoError(testContext, runAdd(ctx, app, "Kotlin is awesome", false, 0, &output), "add first note")
	require.NoError(testContext, runAdd(ctx, app, "Android development", true, 48*time.Hour, &output), "add second note")

	output.Reset()
	require.NoError(testContext, runList(ctx, app, "", &output), "list notes")
	listing := output.String()
	androidIndex := strings.Index(listing, "Android development")
	kotlinIndex := strings.Index(listing, "Kotlin is awesome")
	require.GreaterOrEqual(testContext, androidIndex, 0, listing)
	require.GreaterOrEqual(testContext, kotlinIndex, 0, listing)
	assert.Less(testContext, androidIndex, kotlinIndex, "pinned note is listed first:\n%s", listing)

	output.Reset()
	require.NoError(testContext, runList(ctx, app, "KOTLIN", &output), "filtered list")
	assert.NotContains(testContext, output.String(), "Android")
	assert.Contains(testContext, output.String(), "Kotlin")

	output.Reset()
	require.NoError(testContext, runExport(ctx, app, &output), "export")
	exportPath := strings.TrimSpace(output.String())
	assert.Equal(testContext, filepath.Join(cfg.CacheDir, "notes.json"), exportPath)
	payload, err := os.ReadFile(exportPath)
	require.NoError(testContext, err, "read export")
	assert.NotContains(testContext, string(payload), "Kotlin", "export file must not contain plaintext")

	restoredConfig := cfg
	restoredConfig.DatabasePath = filepath.Join(testContext.TempDir(), "restored.db")
	restored := newTestApplication(testContext, restoredConfig)

	output.Reset()
	require.NoError(testContext, runImport(ctx, restored, exportPath, &output), "import")
	list, err := restored.firstNotes(ctx)
	require.NoError(testContext, err, "read restored notes")
	assert.Len(testContext, list, 2)
}

func TestSecureVariantGeneratesKey(testContext *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(testContext, "secure")
	app := newTestApplication(testContext, cfg)

	var output bytes.Buffer
	require.NoError(testContext, runAdd(ctx, app, "device bound", false, 0, &output), "add note")
	list, err := app.firstNotes(ctx)
	require.NoError(testContext, err, "read notes")
	require.Len(testContext, list, 1)
	assert.Equal(testContext, "device bound", list[0].Text())
}

func TestServeStackAddsNotesOverHTTP(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := newTestConfig(testContext, "exportable")
	app := newTestApplication(testContext, cfg)

	stack, err := newServeStack(app)
	require.NoError(testContext, err, "build serve stack")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stack.start(ctx)
	defer stack.stop()

	token, expiresIn, err := stack.tokens.IssueLaunchToken(ctx)
	require.NoError(testContext, err, "issue launch token")
	assert.Equal(testContext, int64(cfg.TokenTTL.Seconds()), expiresIn)

	httpServer := httptest.NewServer(stack.handler)
	defer httpServer.Close()

	unauthorized, err := http.Get(httpServer.URL + "/notes")
	require.NoError(testContext, err, "unauthorized request")
	unauthorized.Body.Close()
	assert.Equal(testContext, http.StatusUnauthorized, unauthorized.StatusCode)

	request, err := http.NewRequest(http.MethodPost, httpServer.URL+"/notes", strings.NewReader(`{"message":"Kotlin is awesome","isPinned":true}`))
	require.NoError(testContext, err, "build add request")
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := httpServer.Client().Do(request)
	require.NoError(testContext, err, "add request")
	response.Body.Close()
	require.Equal(testContext, http.StatusAccepted, response.StatusCode)

	deadline := time.Now().Add(3 * time.Second)
	for {
		state := fetchState(testContext, httpServer, token)
		if len(state.Notes) == 1 && state.Notes[0].Text() == "Kotlin is awesome" && state.Notes[0].IsPinned {
			break
		}
		require.False(testContext, time.Now().After(deadline), "note did not appear, last state %+v", state)
		time.Sleep(20 * time.Millisecond)
	}
}

func fetchState(testContext *testing.T, httpServer *httptest.Server, token string) presentation.State {
	testContext.Helper()
	request, err := http.NewRequest(http.MethodGet, httpServer.URL+"/notes", http.NoBody)
	require.NoError(testContext, err, "build list request")
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := httpServer.Client().Do(request)
	require.NoError(testContext, err, "list request")
	defer response.Body.Close()
	require.Equal(testContext, http.StatusOK, response.StatusCode)
	var state presentation.State
	require.NoError(testContext, json.NewDecoder(response.Body).Decode(&state), "decode state")
	return state
}

func newTestConfig(testContext *testing.T, variant string) config.AppConfig {
	testContext.Helper()
	configViper := config.NewViper()
	root := testContext.TempDir()
	configViper.Set("database.path", filepath.Join(root, "notevault.db"))
	configViper.Set("cache.dir", filepath.Join(root, "cache"))
	configViper.Set("keystore.type", "memory")
	configViper.Set("crypto.key_variant", variant)
	configViper.Set("auth.signing_secret", "integration-secret")
	cfg, err := config.Load(configViper)
	require.NoError(testContext, err, "load config")
	return cfg
}

func newTestApplication(testContext *testing.T, cfg config.AppConfig) *application {
	testContext.Helper()
	app, err := newApplication(cfg, zap.NewNop(), clock.Real{})
	require.NoError(testContext, err, "build application")
	testContext.Cleanup(func() {
		assert.NoError(testContext, app.Close(), "close application")
	})
	return app
}
