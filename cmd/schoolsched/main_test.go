package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolsched/internal/model"
	"schoolsched/internal/schedule"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("listen", rootCmd.PersistentFlags().Lookup("listen"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "config.yaml")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestBuild_UnknownID(t *testing.T) {
	_, err := run(t, "build", "nobody")
	assert.ErrorContains(t, err, "unknown schedule")
}

func TestBuild_FromFeedURL(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	day := time.Now().In(loc).AddDate(0, 0, 1)
	start := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, loc)

	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:1",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:" + start.UTC().Format("20060102T150405Z"),
		"DTEND:" + start.Add(45*time.Minute).UTC().Format("20060102T150405Z"),
		"SUMMARY:Chemistry - 4",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	out, err := run(t, "build", "adhoc", "--feed", srv.URL+"/cal.ics")
	require.NoError(t, err)

	var got schedule.Schedule
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "adhoc", got.ID)

	d, ok := got.Day(model.DateOf(start).Key())
	require.True(t, ok)
	blocks := d.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "Chemistry", blocks[0].Title)
	assert.Equal(t, "4", blocks[0].Label)
}
