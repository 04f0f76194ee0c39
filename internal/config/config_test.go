package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	assert.Equal(t, 5, s.MaxRetries)
	assert.Equal(t, 150, s.ConcurrentRequests)
	assert.Equal(t, 2, s.JSConcurrency)
	assert.Equal(t, 50000, s.MaxURLsPerDomain)
	assert.Equal(t, 50, s.MaxDepth)
	assert.Equal(t, 100, s.DBBatchSize)
	assert.Equal(t, 500, s.MaxURLLength)
	assert.Equal(t, 8, s.MaxQuerySeparators)

	assert.Equal(t, time.Second, s.BaseDelay())
	assert.Equal(t, time.Minute, s.MaxDelay())
	assert.Equal(t, 8*time.Hour, s.CrawlTimeout())
	assert.Equal(t, 15*time.Minute, s.MaxPendingTime())
	assert.Equal(t, 30*time.Second, s.StallCheckInterval())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Settings){
		func(s *Settings) { s.ConcurrentRequests = 0 },
		func(s *Settings) { s.MaxRetries = -1 },
		func(s *Settings) { s.CrawlTimeoutS = 0 },
		func(s *Settings) { s.DBBatchSize = 0 },
		func(s *Settings) { s.JSConcurrency = 0 },
		func(s *Settings) { s.UserAgentRotation = nil },
		func(s *Settings) { s.MaxURLLength = 0 },
		func(s *Settings) { s.MaxDelayMS = 100; s.BaseDelayMS = 200 },
	}

	for i, mutate := range cases {
		s := DefaultSettings()
		mutate(s)
		assert.Error(t, s.Validate(), "case %d", i)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s := DefaultSettings()
	s.ConcurrentRequests = 25
	s.JavaScriptRendering = true
	s.PageSpeedAPIKey = "key-123"
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLoadFillsAbsentKeysFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"concurrent_requests": 10}`), 0644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.ConcurrentRequests)
	assert.Equal(t, 5, loaded.MaxRetries, "absent keys keep their defaults")
	assert.NotEmpty(t, loaded.UserAgentRotation)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"concurrent_requests": 0}`), 0644))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0644))
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	s := DefaultSettings()
	clone := s.Clone()

	require.Equal(t, s, clone)

	clone.StopWords[0] = "mutated"
	clone.TrackingParams[0] = "mutated"
	assert.NotEqual(t, s.StopWords[0], clone.StopWords[0], "clone owns its slices")
	assert.NotEqual(t, s.TrackingParams[0], clone.TrackingParams[0])
}
