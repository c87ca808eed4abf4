package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"INT_OK":   "42",
		"INT_BAD":  "forty-two",
		"BOOL_YES": "YES",
		"BOOL_NO":  "off",
		"DUR":      "15s",
		"LIST":     " a@x.org, ,b@x.org ",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 42, GetEnvInt("INT_OK", 1))
	assert.Equal(t, 1, GetEnvInt("INT_BAD", 1))
	assert.Equal(t, 7, GetEnvInt("MISSING_INT", 7))
	assert.True(t, GetEnvBool("BOOL_YES", false))
	assert.False(t, GetEnvBool("BOOL_NO", true))
	assert.True(t, GetEnvBool("MISSING_BOOL", true))
	assert.Equal(t, 15*time.Second, GetEnvDuration("DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("MISSING_DUR", time.Second))
	assert.Equal(t, []string{"a@x.org", "b@x.org"}, GetEnvList("LIST"))
}
